package registry

// ABI fragments used by planners, readers and the orchestrator.
const (
	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	// AvaYieldStrategyABI covers the leveraged AVAX strategy vault.
	AvaYieldStrategyABI = `[
		{"name":"totalDeposits","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"checkReward","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getActualLeverage","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"MIN_TOKENS_TO_REINVEST","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getDepositTokensForShares","type":"function","stateMutability":"view","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"reinvest","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]}
	]`

	// PerpsReaderABI is the read-only preview surface of the perpetuals venue.
	// USD values carry 30 decimals and leverage is expressed in basis points.
	PerpsReaderABI = `[
		{"name":"previewOpenPosition","type":"function","stateMutability":"view","inputs":[{"name":"indexToken","type":"address"},{"name":"sizeUsd","type":"uint256"},{"name":"collateralUsd","type":"uint256"},{"name":"isLong","type":"bool"}],"outputs":[{"name":"entryPrice","type":"uint256"},{"name":"liquidationPrice","type":"uint256"},{"name":"fee","type":"uint256"}]},
		{"name":"getPosition","type":"function","stateMutability":"view","inputs":[{"name":"key","type":"bytes32"}],"outputs":[{"name":"indexToken","type":"address"},{"name":"size","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"isLong","type":"bool"}]},
		{"name":"previewPositionLeverageAdjustment","type":"function","stateMutability":"view","inputs":[{"name":"indexToken","type":"address"},{"name":"size","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"leverageBps","type":"uint256"}],"outputs":[{"name":"collateralDelta","type":"int256"},{"name":"fee","type":"uint256"},{"name":"liquidationPrice","type":"uint256"}]},
		{"name":"previewPositionClose","type":"function","stateMutability":"view","inputs":[{"name":"indexToken","type":"address"},{"name":"size","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"isLong","type":"bool"}],"outputs":[{"name":"returnAmount","type":"uint256"},{"name":"fee","type":"uint256"},{"name":"marketImpact","type":"uint256"}]}
	]`

	PerpsPositionRouterABI = `[
		{"name":"openPosition","type":"function","stateMutability":"nonpayable","inputs":[{"name":"indexToken","type":"address"},{"name":"isLong","type":"bool"},{"name":"sizeDelta","type":"uint256"},{"name":"collateralDelta","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
		{"name":"adjustPositionLeverage","type":"function","stateMutability":"nonpayable","inputs":[{"name":"key","type":"bytes32"},{"name":"leverageBps","type":"uint256"}],"outputs":[]},
		{"name":"closePosition","type":"function","stateMutability":"nonpayable","inputs":[{"name":"key","type":"bytes32"}],"outputs":[]}
	]`
)
