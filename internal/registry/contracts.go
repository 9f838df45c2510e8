package registry

import "strings"

const (
	AvalancheChainID int64 = 43114

	// AvaYieldStrategy is the default leveraged AVAX strategy vault.
	AvaYieldStrategy = "0x8B414448de8B609e96bd63Dcf2A8aDbd5ddf7fdd"

	PerpsReader         = "0x38d91ED96283d62182Fc6d990C24097A918a4d9b"
	PerpsPositionRouter = "0x6f2800d4fb11d45963ac8EA6f036b63E77176E0F"
	// PerpsRouter pulls collateral, so it is the approval spender.
	PerpsRouter = "0x7452c558d45f8afC8c83dAe62C3f8A5BE19c71f6"

	// PerpsCollateralToken is USDC on Avalanche.
	PerpsCollateralToken     = "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"
	PerpsCollateralDecimals  = 6
	PerpsMinCollateralUSD    = 10
	PerpsUSDDecimals         = 30
	PerpsLeverageBasisPoints = 10_000
	PerpsMinLeverage         = "1.1"
	PerpsMaxLeverage         = "50"
)

// PerpsMarket describes one tradable pair.
type PerpsMarket struct {
	Pair       string
	IndexToken string
	Decimals   int
}

var perpsMarkets = map[string]PerpsMarket{
	"AVAX-USD": {Pair: "AVAX-USD", IndexToken: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7", Decimals: 18},
	"ETH-USD":  {Pair: "ETH-USD", IndexToken: "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB", Decimals: 18},
	"BTC-USD":  {Pair: "BTC-USD", IndexToken: "0x152b9d0FdC40C096757F570A51E494bd4b943E50", Decimals: 8},
	"USDC-USD": {Pair: "USDC-USD", IndexToken: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
}

func PerpsMarketByPair(pair string) (PerpsMarket, bool) {
	m, ok := perpsMarkets[strings.ToUpper(strings.TrimSpace(pair))]
	return m, ok
}

func PerpsPairs() []string {
	return []string{"AVAX-USD", "BTC-USD", "ETH-USD", "USDC-USD"}
}
