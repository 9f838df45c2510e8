package preview

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ggonzalez94/defi-intents/internal/actions"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/providers"
)

func previewTransfer(ctx context.Context, b *Builder, req request) (*draft, error) {
	in := req.intent
	fromChain, toChain, err := transferChains(in.String)
	if err != nil {
		return nil, err
	}
	fromToken, err := resolveToken(in.String, "from_token", fromChain)
	if err != nil {
		return nil, err
	}
	toToken, err := resolveToken(in.String, "to_token", toChain)
	if err != nil {
		return nil, err
	}
	if fromChain.EVMChainID == toChain.EVMChainID && strings.EqualFold(fromToken.Address, toToken.Address) {
		return nil, clierr.InvalidField("to_token", "transfer to the same token on the same chain does nothing")
	}
	raw, _ := in.Decimal("amount")
	amount, err := id.ParseAmount(raw, fromToken.Decimals)
	if err != nil {
		return nil, clierr.InvalidField("amount", "%s", err.Error())
	}
	if amount.BaseUnits.Sign() == 0 {
		return nil, clierr.InvalidField("amount", "%s rounds to zero at %d decimals", raw, fromToken.Decimals)
	}
	if err := requireProvider(b.deps.Bridge != nil, actions.FamilyBridge); err != nil {
		return nil, err
	}

	quote, err := b.deps.Bridge.QuoteBridge(ctx, providers.BridgeQuoteRequest{
		FromChain:   fromChain,
		ToChain:     toChain,
		FromToken:   fromToken,
		ToToken:     toToken,
		Amount:      amount,
		UserAddress: req.owner.Hex(),
	})
	if err != nil {
		return nil, providerError("bridge quote failed", err)
	}
	tx, err := b.deps.Bridge.BuildBridgeTx(ctx, quote, req.owner.Hex())
	if err != nil {
		return nil, providerError("bridge transaction build failed", err)
	}
	if tx.ChainID != fromChain.EVMChainID {
		return nil, clierr.New(clierr.CodeProvider, fmt.Sprintf("bridge transaction targets chain %d, expected %d", tx.ChainID, fromChain.EVMChainID))
	}

	d := newDraft()
	d.warn(amount.RoundingNotice())
	d.plan = execution.Plan{
		ChainID: fromChain.EVMChainID,
		Calls: []execution.Call{{
			Label:  "bridge." + bridgeLabel(quote.Bridges),
			Target: tx.Target,
			Data:   tx.Data,
			Value:  tx.Value,
		}},
	}
	if !fromToken.IsNative() {
		if tx.Approval == nil {
			return nil, clierr.New(clierr.CodeProvider, "bridge did not report an allowance target for an ERC-20 transfer")
		}
		if !strings.EqualFold(strings.TrimSpace(tx.Approval.Token), fromToken.Address) {
			return nil, clierr.New(clierr.CodeProvider, fmt.Sprintf("bridge approval token %s does not match %s %s", tx.Approval.Token, fromToken.Symbol, fromToken.Address))
		}
		approveAmount := amount.BaseUnits
		if minimum, ok := new(big.Int).SetString(strings.TrimSpace(tx.Approval.MinimumAmount), 10); ok && minimum.Cmp(approveAmount) > 0 {
			approveAmount = minimum
		}
		d.plan.Approval = &execution.Approval{
			Token:   tx.Approval.Token,
			Spender: tx.Approval.Spender,
			Amount:  approveAmount.String(),
		}
		d.set("approval_amount", id.FormatBaseUnits(approveAmount, fromToken.Decimals))
	}

	d.set("amount", amount.Decimal)
	d.set("amount_base_units", amount.String())
	d.set("from_chain", fromChain.Name)
	d.set("to_chain", toChain.Name)
	d.set("from_token", fromToken.Symbol)
	d.set("to_token", toToken.Symbol)
	d.set("estimated_out", quote.EstimatedOut.AmountDecimal)
	d.set("fee_usd", strconv.FormatFloat(quote.EstimatedFeeUSD, 'f', 2, 64))
	d.set("eta_seconds", strconv.FormatInt(quote.EstimatedTimeS, 10))
	d.set("route_id", quote.RouteID)
	d.set("bridges", strings.Join(quote.Bridges, ","))

	d.line("Send %s %s from %s to %s", amount.Decimal, fromToken.Symbol, fromChain.Name, toChain.Name)
	d.line("Expected to receive %s %s", quote.EstimatedOut.AmountDecimal, toToken.Symbol)
	d.line("Route: %s, about %s", bridgeLabel(quote.Bridges), durationText(quote.EstimatedTimeS))
	d.line("Estimated gas fees: $%.2f", quote.EstimatedFeeUSD)
	if d.plan.Approval != nil {
		d.line("Approves %s %s for the bridge first if the current allowance is too low", d.fields["approval_amount"], fromToken.Symbol)
	}
	return d, nil
}

func transferChains(get func(string) (string, error)) (id.Chain, id.Chain, error) {
	fromRaw, _ := get("from_chain")
	toRaw, _ := get("to_chain")
	from, err := id.ParseChain(fromRaw)
	if err != nil {
		return id.Chain{}, id.Chain{}, clierr.InvalidField("from_chain", "unsupported chain %q", fromRaw)
	}
	to, err := id.ParseChain(toRaw)
	if err != nil {
		return id.Chain{}, id.Chain{}, clierr.InvalidField("to_chain", "unsupported chain %q", toRaw)
	}
	return from, to, nil
}

func resolveToken(get func(string) (string, error), field string, chain id.Chain) (id.Token, error) {
	raw, _ := get(field)
	token, err := id.ParseToken(raw, chain)
	if err != nil {
		return id.Token{}, clierr.InvalidField(field, "unknown token %q on %s", raw, chain.Name)
	}
	return token, nil
}

func bridgeLabel(bridges []string) string {
	if len(bridges) == 0 {
		return "auto"
	}
	return strings.Join(bridges, "+")
}

func durationText(seconds int64) string {
	switch {
	case seconds <= 0:
		return "unknown time"
	case seconds < 120:
		return fmt.Sprintf("%ds", seconds)
	default:
		return fmt.Sprintf("%d min", (seconds+59)/60)
	}
}
