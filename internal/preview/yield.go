package preview

import (
	"context"
	"math/big"

	"github.com/ggonzalez94/defi-intents/internal/actions"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/execution/planner"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/intent"
)

// The vault takes and returns native AVAX.
const vaultTokenDecimals = 18

func previewYieldDeposit(ctx context.Context, b *Builder, req request) (*draft, error) {
	raw, _ := req.intent.Decimal("amount")
	amount, err := id.ParseAmount(raw, vaultTokenDecimals)
	if err != nil {
		return nil, clierr.InvalidField("amount", "%s", err.Error())
	}
	if amount.BaseUnits.Sign() == 0 {
		return nil, clierr.InvalidField("amount", "%s rounds to zero", raw)
	}
	if err := requireProvider(b.deps.Vault != nil, actions.FamilyYield); err != nil {
		return nil, err
	}
	vault := b.deps.Vault

	leverage, err := vault.Leverage(ctx)
	if err != nil {
		return nil, providerError("read vault leverage", err)
	}
	total, err := vault.TotalDeposits(ctx)
	if err != nil {
		return nil, providerError("read vault deposits", err)
	}
	call, err := planner.VaultDepositCall(vault.Address().Hex(), amount.BaseUnits)
	if err != nil {
		return nil, err
	}

	d := newDraft()
	d.warn(amount.RoundingNotice())
	d.plan = execution.Plan{ChainID: vault.ChainID(), Calls: []execution.Call{call}}
	d.set("amount", amount.Decimal)
	d.set("amount_base_units", amount.String())
	d.set("vault", vault.Address().Hex())
	d.set("vault_leverage", formatBps(leverage))
	d.set("vault_total_deposits", id.FormatBaseUnits(total, vaultTokenDecimals))
	d.line("Deposit %s AVAX into vault %s", amount.Decimal, vault.Address().Hex())
	d.line("Current strategy leverage: %sx", formatBps(leverage))
	return d, nil
}

func previewYieldWithdraw(ctx context.Context, b *Builder, req request) (*draft, error) {
	raw, _ := req.intent.Decimal("percentage")
	pct, err := actions.ParseDecimal("percentage", raw)
	if err != nil {
		return nil, err
	}
	if err := requireProvider(b.deps.Vault != nil, actions.FamilyYield); err != nil {
		return nil, err
	}
	vault := b.deps.Vault

	shares, err := vault.SharesOf(ctx, req.owner)
	if err != nil {
		return nil, providerError("read vault shares", err)
	}
	if shares.Sign() == 0 {
		return nil, clierr.New(clierr.CodeProvider, "no vault shares to withdraw")
	}
	portion := new(big.Rat).Mul(new(big.Rat).SetInt(shares), pct)
	portion.Quo(portion, big.NewRat(100, 1))
	withdrawShares := new(big.Int).Quo(portion.Num(), portion.Denom())
	if withdrawShares.Sign() == 0 {
		return nil, clierr.InvalidField("percentage", "%s%% of your shares rounds to zero", raw)
	}
	value, err := vault.DepositTokensForShares(ctx, withdrawShares)
	if err != nil {
		return nil, providerError("value vault shares", err)
	}

	d := newDraft()
	d.plan = execution.Plan{ChainID: vault.ChainID()}
	if err := b.maybeReinvest(ctx, req.intent.Kind, d); err != nil {
		return nil, err
	}
	call, err := planner.VaultWithdrawCall(vault.Address().Hex(), withdrawShares)
	if err != nil {
		return nil, err
	}
	d.plan.Calls = append(d.plan.Calls, call)

	d.set("percentage", pct.FloatString(2))
	d.set("shares", withdrawShares.String())
	d.set("total_shares", shares.String())
	d.set("estimated_out", id.FormatBaseUnits(value, vaultTokenDecimals))
	d.line("Withdraw %s%% of your vault shares (%s of %s)", trimRat(pct), withdrawShares, shares)
	d.line("Expected to receive about %s AVAX", id.FormatBaseUnits(value, vaultTokenDecimals))
	return d, nil
}

func previewYieldReinvest(ctx context.Context, b *Builder, req request) (*draft, error) {
	if err := requireProvider(b.deps.Vault != nil, actions.FamilyYield); err != nil {
		return nil, err
	}
	vault := b.deps.Vault
	rewards, minimum, err := vaultRewards(ctx, b)
	if err != nil {
		return nil, err
	}
	if rewards.Sign() == 0 || rewards.Cmp(minimum) < 0 {
		return nil, clierr.New(clierr.CodeProvider, "pending rewards "+id.FormatBaseUnits(rewards, vaultTokenDecimals)+
			" are below the vault minimum of "+id.FormatBaseUnits(minimum, vaultTokenDecimals)+"; reinvest would revert")
	}
	call, err := planner.VaultReinvestCall(vault.Address().Hex())
	if err != nil {
		return nil, err
	}
	d := newDraft()
	d.plan = execution.Plan{ChainID: vault.ChainID(), Calls: []execution.Call{call}}
	d.set("pending_rewards", id.FormatBaseUnits(rewards, vaultTokenDecimals))
	d.set("min_tokens_to_reinvest", id.FormatBaseUnits(minimum, vaultTokenDecimals))
	d.line("Compound %s of pending rewards back into the vault", id.FormatBaseUnits(rewards, vaultTokenDecimals))
	return d, nil
}

// maybeReinvest prepends a reinvest call when the policy asks for it and the
// vault has enough pending rewards. The call must run first, so d.plan.Calls
// is expected to be empty.
func (b *Builder) maybeReinvest(ctx context.Context, kind intent.Kind, d *draft) error {
	if !b.deps.Policy.ReinvestsBefore(string(kind)) {
		return nil
	}
	if b.deps.Vault == nil {
		return requireProvider(false, actions.FamilyYield)
	}
	rewards, minimum, err := vaultRewards(ctx, b)
	if err != nil {
		return err
	}
	if rewards.Sign() == 0 || rewards.Cmp(minimum) < 0 {
		d.set("reinvest_first", "false")
		return nil
	}
	call, err := planner.VaultReinvestCall(b.deps.Vault.Address().Hex())
	if err != nil {
		return err
	}
	if d.plan.ChainID != b.deps.Vault.ChainID() {
		return clierr.New(clierr.CodeInternal, "reinvest requires the vault chain")
	}
	d.plan.Calls = append([]execution.Call{call}, d.plan.Calls...)
	d.set("reinvest_first", "true")
	d.line("Reinvests %s of pending vault rewards first", id.FormatBaseUnits(rewards, vaultTokenDecimals))
	return nil
}

func vaultRewards(ctx context.Context, b *Builder) (*big.Int, *big.Int, error) {
	rewards, err := b.deps.Vault.PendingRewards(ctx)
	if err != nil {
		return nil, nil, providerError("read pending rewards", err)
	}
	minimum, err := b.deps.Vault.MinTokensToReinvest(ctx)
	if err != nil {
		return nil, nil, providerError("read reinvest minimum", err)
	}
	return rewards, minimum, nil
}
