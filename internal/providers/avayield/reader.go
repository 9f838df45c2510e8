// Package avayield reads the leveraged AVAX strategy vault.
package avayield

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

var strategyABI = providers.MustABI(registry.AvaYieldStrategyABI)

type Reader struct {
	contract providers.Contract
	chainID  int64
}

// NewReader reads the vault at address; an empty address selects the default
// strategy.
func NewReader(caller ethereum.ContractCaller, address string) *Reader {
	if address == "" {
		address = registry.AvaYieldStrategy
	}
	return &Reader{
		contract: providers.Contract{Caller: caller, ABI: strategyABI, Address: common.HexToAddress(address)},
		chainID:  registry.AvalancheChainID,
	}
}

func (r *Reader) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "avayield",
		Family:       "yield",
		Capabilities: []string{"vault.deposit", "vault.withdraw", "vault.reinvest", "vault.state"},
	}
}

func (r *Reader) ChainID() int64          { return r.chainID }
func (r *Reader) Address() common.Address { return r.contract.Address }

func (r *Reader) PendingRewards(ctx context.Context) (*big.Int, error) {
	return r.contract.CallUint(ctx, "checkReward")
}

func (r *Reader) MinTokensToReinvest(ctx context.Context) (*big.Int, error) {
	return r.contract.CallUint(ctx, "MIN_TOKENS_TO_REINVEST")
}

func (r *Reader) SharesOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return r.contract.CallUint(ctx, "balanceOf", owner)
}

func (r *Reader) DepositTokensForShares(ctx context.Context, shares *big.Int) (*big.Int, error) {
	return r.contract.CallUint(ctx, "getDepositTokensForShares", shares)
}

// Leverage is reported in basis points of the deposit.
func (r *Reader) Leverage(ctx context.Context) (*big.Int, error) {
	return r.contract.CallUint(ctx, "getActualLeverage")
}

func (r *Reader) TotalDeposits(ctx context.Context) (*big.Int, error) {
	return r.contract.CallUint(ctx, "totalDeposits")
}

// Snapshot collects the vault state for owner.
func Snapshot(ctx context.Context, v providers.VaultReader, owner common.Address) (model.VaultState, error) {
	shares, err := v.SharesOf(ctx, owner)
	if err != nil {
		return model.VaultState{}, err
	}
	value, err := v.DepositTokensForShares(ctx, shares)
	if err != nil {
		return model.VaultState{}, err
	}
	rewards, err := v.PendingRewards(ctx)
	if err != nil {
		return model.VaultState{}, err
	}
	minReinvest, err := v.MinTokensToReinvest(ctx)
	if err != nil {
		return model.VaultState{}, err
	}
	leverage, err := v.Leverage(ctx)
	if err != nil {
		return model.VaultState{}, err
	}
	total, err := v.TotalDeposits(ctx)
	if err != nil {
		return model.VaultState{}, err
	}
	return model.VaultState{
		Address:             v.Address().Hex(),
		ChainID:             v.ChainID(),
		Shares:              shares.String(),
		SharesValue:         value.String(),
		PendingRewards:      rewards.String(),
		MinTokensToReinvest: minReinvest.String(),
		LeverageBps:         leverage.String(),
		TotalDeposits:       total.String(),
	}, nil
}
