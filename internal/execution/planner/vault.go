package planner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

var plannerVaultABI = mustPlannerABI(registry.AvaYieldStrategyABI)

// VaultDepositCall sends value wei of the native token into the vault.
func VaultDepositCall(vault string, value *big.Int) (execution.Call, error) {
	if value == nil || value.Sign() <= 0 {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "deposit amount must be positive")
	}
	return vaultCall(vault, "deposit", value)
}

// VaultWithdrawCall redeems shares from the vault.
func VaultWithdrawCall(vault string, shares *big.Int) (execution.Call, error) {
	if shares == nil || shares.Sign() <= 0 {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "withdraw shares must be positive")
	}
	return vaultCall(vault, "withdraw", nil, shares)
}

func VaultReinvestCall(vault string) (execution.Call, error) {
	return vaultCall(vault, "reinvest", nil)
}

func vaultCall(vault, method string, value *big.Int, args ...any) (execution.Call, error) {
	if !common.IsHexAddress(vault) {
		return execution.Call{}, clierr.New(clierr.CodeUsage, "vault address is invalid")
	}
	data, err := plannerVaultABI.Pack(method, args...)
	if err != nil {
		return execution.Call{}, clierr.Wrap(clierr.CodeInternal, "pack vault "+method+" calldata", err)
	}
	v := "0"
	if value != nil {
		v = value.String()
	}
	return execution.Call{
		Label:  "vault." + method,
		Target: common.HexToAddress(vault).Hex(),
		Data:   hexData(data),
		Value:  v,
	}, nil
}
