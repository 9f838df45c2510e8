package planner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

var plannerPerpsRouterABI = mustPlannerABI(registry.PerpsPositionRouterABI)

type OpenPositionRequest struct {
	Router     string
	IndexToken string
	IsLong     bool
	// SizeUSD uses 30 decimals.
	SizeUSD *big.Int
	// Collateral is denominated in collateral token base units.
	Collateral *big.Int
}

func OpenPositionCall(req OpenPositionRequest) (execution.Call, error) {
	if !common.IsHexAddress(req.IndexToken) {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "index token address is invalid")
	}
	if req.SizeUSD == nil || req.SizeUSD.Sign() <= 0 || req.Collateral == nil || req.Collateral.Sign() <= 0 {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "position size and collateral must be positive")
	}
	return routerCall(req.Router, "perps.open", "openPosition",
		common.HexToAddress(req.IndexToken), req.IsLong, req.SizeUSD, req.Collateral)
}

func AdjustLeverageCall(router string, key common.Hash, leverageBps *big.Int) (execution.Call, error) {
	if leverageBps == nil || leverageBps.Sign() <= 0 {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "leverage must be positive")
	}
	return routerCall(router, "perps.adjust_leverage", "adjustPositionLeverage", key, leverageBps)
}

func ClosePositionCall(router string, key common.Hash) (execution.Call, error) {
	return routerCall(router, "perps.close", "closePosition", key)
}

func routerCall(router, label, method string, args ...any) (execution.Call, error) {
	if !common.IsHexAddress(router) {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "position router address is invalid")
	}
	data, err := plannerPerpsRouterABI.Pack(method, args...)
	if err != nil {
		return execution.Call{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}
	return execution.Call{
		Label:  label,
		Target: common.HexToAddress(router).Hex(),
		Data:   hexData(data),
		Value:  "0",
	}, nil
}
