package preview

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/actions"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/execution/planner"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

func previewPositionOpen(ctx context.Context, b *Builder, req request) (*draft, error) {
	in := req.intent
	pair, _ := in.String("pair")
	market, ok := registry.PerpsMarketByPair(pair)
	if !ok {
		return nil, clierr.InvalidField("pair", "unsupported pair %q (supported: %s)", pair, strings.Join(registry.PerpsPairs(), ", "))
	}
	sideRaw, _ := in.String("side")
	isLong, err := actions.ParseSide(sideRaw)
	if err != nil {
		return nil, err
	}
	sizeRaw, _ := in.Decimal("size_usd")
	collRaw, _ := in.Decimal("collateral_usd")
	size, err := actions.ParseDecimal("size_usd", sizeRaw)
	if err != nil {
		return nil, err
	}
	collateral, err := actions.ParseDecimal("collateral_usd", collRaw)
	if err != nil {
		return nil, err
	}
	if collateral.Cmp(big.NewRat(registry.PerpsMinCollateralUSD, 1)) < 0 {
		return nil, clierr.InvalidField("collateral_usd", "collateral must be at least $%d", registry.PerpsMinCollateralUSD)
	}
	lev := new(big.Rat).Quo(size, collateral)
	if r := actions.LeverageRange(); !r.Contains(lev) {
		return nil, clierr.InvalidField("leverage", "leverage %sx is outside the allowed range %s", trimRat(lev), r)
	}

	sizeUSD, err := id.ParseAmount(sizeRaw, registry.PerpsUSDDecimals)
	if err != nil {
		return nil, clierr.InvalidField("size_usd", "%s", err.Error())
	}
	collUSD, err := id.ParseAmount(collRaw, registry.PerpsUSDDecimals)
	if err != nil {
		return nil, clierr.InvalidField("collateral_usd", "%s", err.Error())
	}
	collUnits, err := id.ParseAmount(collRaw, registry.PerpsCollateralDecimals)
	if err != nil {
		return nil, clierr.InvalidField("collateral_usd", "%s", err.Error())
	}
	if err := requireProvider(b.deps.Perps != nil, actions.FamilyPerps); err != nil {
		return nil, err
	}

	quote, err := b.deps.Perps.PreviewOpen(ctx, providers.PerpsOpenRequest{
		Market:     market,
		IsLong:     isLong,
		SizeUSD:    sizeUSD.BaseUnits,
		Collateral: collUSD.BaseUnits,
	})
	if err != nil {
		return nil, providerError("position preview failed", err)
	}
	call, err := planner.OpenPositionCall(planner.OpenPositionRequest{
		Router:     b.positionRouter(),
		IndexToken: market.IndexToken,
		IsLong:     isLong,
		SizeUSD:    sizeUSD.BaseUnits,
		Collateral: collUnits.BaseUnits,
	})
	if err != nil {
		return nil, err
	}

	d := newDraft()
	d.warn(collUnits.RoundingNotice())
	d.plan = execution.Plan{
		ChainID: registry.AvalancheChainID,
		Approval: &execution.Approval{
			Token:   registry.PerpsCollateralToken,
			Spender: registry.PerpsRouter,
			Amount:  collUnits.String(),
		},
		Calls: []execution.Call{call},
	}
	side := sideName(isLong)
	d.set("pair", market.Pair)
	d.set("side", side)
	d.set("size_usd", sizeUSD.Decimal)
	d.set("collateral_usd", collUnits.Decimal)
	d.set("leverage", lev.FloatString(2))
	d.set("entry_price", formatUSD(quote.EntryPrice))
	d.set("liquidation_price", formatUSD(quote.LiquidationPrice))
	d.set("fee_usd", formatUSD(quote.FeeUSD))
	d.line("Open %s %s with $%s size and $%s USDC collateral (%sx)", side, market.Pair, sizeUSD.Decimal, collUnits.Decimal, lev.FloatString(2))
	d.line("Entry price $%s, liquidation price $%s", formatUSD(quote.EntryPrice), formatUSD(quote.LiquidationPrice))
	d.line("Estimated fee $%s", formatUSD(quote.FeeUSD))
	return d, nil
}

func previewPositionLeverage(ctx context.Context, b *Builder, req request) (*draft, error) {
	key, err := positionKey(req.intent)
	if err != nil {
		return nil, err
	}
	raw, _ := req.intent.Decimal("leverage")
	lev, err := id.ParseAmount(raw, 4)
	if err != nil {
		return nil, clierr.InvalidField("leverage", "%s", err.Error())
	}
	if err := requireProvider(b.deps.Perps != nil, actions.FamilyPerps); err != nil {
		return nil, err
	}
	quote, err := b.deps.Perps.PreviewLeverage(ctx, key, lev.BaseUnits)
	if err != nil {
		return nil, providerError("leverage preview failed", err)
	}
	call, err := planner.AdjustLeverageCall(b.positionRouter(), key, lev.BaseUnits)
	if err != nil {
		return nil, err
	}

	d := newDraft()
	d.warn(lev.RoundingNotice())
	d.plan = execution.Plan{ChainID: registry.AvalancheChainID, Calls: []execution.Call{call}}
	d.set("position_id", key.Hex())
	d.set("leverage", lev.Decimal)
	d.set("current_size_usd", formatUSD(quote.Position.SizeUSD))
	d.set("current_collateral_usd", formatUSD(quote.Position.Collateral))
	d.set("collateral_delta_usd", formatUSD(quote.CollateralDelta))
	d.set("liquidation_price", formatUSD(quote.LiquidationPrice))
	d.set("fee_usd", formatUSD(quote.FeeUSD))
	d.line("Set leverage of position %s to %sx", shortKey(key), lev.Decimal)
	d.line("Collateral change $%s, new liquidation price $%s", formatUSD(quote.CollateralDelta), formatUSD(quote.LiquidationPrice))
	d.line("Estimated fee $%s", formatUSD(quote.FeeUSD))
	return d, nil
}

func previewPositionClose(ctx context.Context, b *Builder, req request) (*draft, error) {
	key, err := positionKey(req.intent)
	if err != nil {
		return nil, err
	}
	if err := requireProvider(b.deps.Perps != nil, actions.FamilyPerps); err != nil {
		return nil, err
	}
	quote, err := b.deps.Perps.PreviewClose(ctx, key)
	if err != nil {
		return nil, providerError("close preview failed", err)
	}

	d := newDraft()
	d.plan = execution.Plan{ChainID: registry.AvalancheChainID}
	if err := b.maybeReinvest(ctx, intent.KindPositionClose, d); err != nil {
		return nil, err
	}
	call, err := planner.ClosePositionCall(b.positionRouter(), key)
	if err != nil {
		return nil, err
	}
	d.plan.Calls = append(d.plan.Calls, call)
	d.set("position_id", key.Hex())
	d.set("side", sideName(quote.Position.IsLong))
	d.set("size_usd", formatUSD(quote.Position.SizeUSD))
	d.set("return_usd", formatUSD(quote.ReturnUSD))
	d.set("fee_usd", formatUSD(quote.FeeUSD))
	d.set("market_impact_usd", formatUSD(quote.MarketImpact))
	d.line("Close %s position %s of $%s", sideName(quote.Position.IsLong), shortKey(key), formatUSD(quote.Position.SizeUSD))
	d.line("Expected return $%s after $%s fees", formatUSD(quote.ReturnUSD), formatUSD(quote.FeeUSD))
	return d, nil
}

func (b *Builder) positionRouter() string {
	if b.deps.PositionRouter != "" {
		return b.deps.PositionRouter
	}
	return registry.PerpsPositionRouter
}

func positionKey(in intent.Intent) (common.Hash, error) {
	raw, err := in.String("position_id")
	if err != nil {
		return common.Hash{}, clierr.InvalidField("position_id", "%s", err.Error())
	}
	return common.HexToHash(raw), nil
}

func shortKey(key common.Hash) string {
	h := key.Hex()
	return h[:10] + "…" + h[len(h)-4:]
}

func sideName(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
