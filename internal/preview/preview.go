// Package preview turns a validated intent into a deterministic, frozen
// description of what execution would do. It only reads from providers.
package preview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/actions"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/metrics"
	"github.com/ggonzalez94/defi-intents/internal/policy"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Preview is everything the user sees before confirming and everything the
// orchestrator needs after. Payload is never recomputed.
type Preview struct {
	ID        string            `json:"id"`
	Kind      intent.Kind       `json:"kind"`
	Intent    intent.Intent     `json:"intent"`
	Owner     string            `json:"owner"`
	Fields    map[string]string `json:"fields"`
	Summary   string            `json:"summary"`
	Warnings  []string          `json:"warnings,omitempty"`
	Payload   execution.Plan    `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}

type Deps struct {
	Registry *actions.Registry
	Bridge   providers.BridgeProvider
	Vault    providers.VaultReader
	Perps    providers.PerpsReader
	Policy   policy.Policy
	// PositionRouter receives position calls; empty selects the default.
	PositionRouter string
	Logger         zerolog.Logger
}

// draft is what a variant produces before the builder stamps it.
type draft struct {
	fields   map[string]string
	lines    []string
	warnings []string
	plan     execution.Plan
}

func newDraft() *draft {
	return &draft{fields: map[string]string{}}
}

func (d *draft) set(key, value string) { d.fields[key] = value }

func (d *draft) line(format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf(format, args...))
}

func (d *draft) warn(msg string) {
	if msg != "" {
		d.warnings = append(d.warnings, msg)
	}
}

type request struct {
	owner  common.Address
	intent intent.Intent
	entry  actions.Entry
}

type variant func(ctx context.Context, b *Builder, req request) (*draft, error)

type Builder struct {
	deps     Deps
	variants map[intent.Kind]variant
	now      func() time.Time
	logger   zerolog.Logger
}

// NewBuilder wires a builder and checks that every registered kind has a
// preview variant.
func NewBuilder(deps Deps) (*Builder, error) {
	if deps.Registry == nil {
		deps.Registry = actions.Default()
	}
	b := &Builder{
		deps: deps,
		variants: map[intent.Kind]variant{
			intent.KindTransfer:         previewTransfer,
			intent.KindYieldDeposit:     previewYieldDeposit,
			intent.KindYieldWithdraw:    previewYieldWithdraw,
			intent.KindYieldReinvest:    previewYieldReinvest,
			intent.KindPositionOpen:     previewPositionOpen,
			intent.KindPositionLeverage: previewPositionLeverage,
			intent.KindPositionClose:    previewPositionClose,
		},
		now:    time.Now,
		logger: deps.Logger.With().Str("component", "preview").Logger(),
	}
	for _, k := range deps.Registry.Kinds() {
		if _, ok := b.variants[k]; !ok {
			return nil, fmt.Errorf("no preview variant for action kind %s", k)
		}
	}
	return b, nil
}

// Build validates the intent, prices it and returns the preview. Validation
// failures are reported before any provider is contacted.
func (b *Builder) Build(ctx context.Context, owner string, in intent.Intent) (Preview, error) {
	start := b.now()
	p, err := b.build(ctx, owner, in)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if cErr, ok := clierr.As(err); ok {
			outcome = clierr.TypeName(cErr.Code)
		}
	}
	metrics.PreviewsBuilt.WithLabelValues(string(in.Kind), outcome).Inc()
	metrics.PreviewLatency.WithLabelValues(string(in.Kind)).Observe(b.now().Sub(start).Seconds())
	if err != nil {
		b.logger.Info().Str("kind", string(in.Kind)).Str("outcome", outcome).Err(err).Msg("preview rejected")
		return Preview{}, err
	}
	b.logger.Info().
		Str("kind", string(p.Kind)).
		Str("preview_id", p.ID).
		Int64("chain_id", p.Payload.ChainID).
		Int("calls", len(p.Payload.Calls)).
		Bool("approval", p.Payload.Approval != nil).
		Msg("preview built")
	return p, nil
}

func (b *Builder) build(ctx context.Context, owner string, in intent.Intent) (Preview, error) {
	if err := b.deps.Policy.CheckKind(string(in.Kind)); err != nil {
		return Preview{}, err
	}
	entry, err := b.deps.Registry.Lookup(in.Kind)
	if err != nil {
		return Preview{}, err
	}
	if err := entry.Validate(in); err != nil {
		return Preview{}, err
	}
	if !common.IsHexAddress(owner) {
		return Preview{}, clierr.New(clierr.CodeUsage, "preview requires a wallet address")
	}

	d, err := b.variants[in.Kind](ctx, b, request{owner: common.HexToAddress(owner), intent: in, entry: entry})
	if err != nil {
		return Preview{}, err
	}
	d.plan.Owner = common.HexToAddress(owner).Hex()
	if err := d.plan.Validate(); err != nil {
		return Preview{}, clierr.Wrap(clierr.CodeProvider, "provider returned an unusable plan", err)
	}
	return Preview{
		ID:        "pv_" + uuid.NewString(),
		Kind:      in.Kind,
		Intent:    in,
		Owner:     d.plan.Owner,
		Fields:    d.fields,
		Summary:   summarize(entry, d),
		Warnings:  d.warnings,
		Payload:   d.plan,
		CreatedAt: b.now().UTC(),
	}, nil
}

func summarize(entry actions.Entry, d *draft) string {
	var sb strings.Builder
	sb.WriteString(entry.Describe)
	for _, l := range d.lines {
		sb.WriteString("\n- ")
		sb.WriteString(l)
	}
	for _, w := range d.warnings {
		sb.WriteString("\nWarning: ")
		sb.WriteString(w)
	}
	sb.WriteString("\nReply confirm to execute or cancel to discard.")
	return sb.String()
}

// providerError wraps a failed provider call, keeping the cause reachable
// through errors.Unwrap.
func providerError(what string, err error) error {
	return clierr.Wrap(clierr.CodeProvider, what, err)
}

// requireProvider reports a missing collaborator for a family.
func requireProvider(ok bool, family actions.Family) error {
	if ok {
		return nil
	}
	return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no %s provider is configured", family))
}
