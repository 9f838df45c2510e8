// Package confirm drives the preview, confirm and cancel conversation for
// each user on top of the pending store.
package confirm

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/execution/signer"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/log"
	"github.com/ggonzalez94/defi-intents/internal/metrics"
	"github.com/ggonzalez94/defi-intents/internal/pending"
	"github.com/ggonzalez94/defi-intents/internal/preview"
	"github.com/ggonzalez94/defi-intents/internal/registry"
	"github.com/ggonzalez94/defi-intents/internal/wallet"
	"github.com/rs/zerolog"
)

type State string

const (
	StatePreviewed      State = "previewed"
	StateConfirmed      State = "confirmed"
	StateCancelled      State = "cancelled"
	StateNothingPending State = "nothing_pending"
	StateRejected       State = "rejected"
)

const (
	msgExpired         = "Transaction expired. Send your request again to get a fresh preview."
	msgNothingToCancel = "Nothing to cancel: the transaction expired or was already handled."
	msgCancelled       = "Cancelled. Nothing was sent."
	msgRephrase        = "I couldn't understand that request. Please rephrase it with the amount, asset and chain."
)

// Reply is what the user sees after each turn. Message is always set.
type Reply struct {
	State      State             `json:"state"`
	Message    string            `json:"message"`
	Preview    *preview.Preview  `json:"preview,omitempty"`
	Result     *execution.Result `json:"result,omitempty"`
	Superseded intent.Kind       `json:"superseded,omitempty"`
}

type Previewer interface {
	Build(ctx context.Context, owner string, in intent.Intent) (preview.Preview, error)
}

type Executor interface {
	Execute(ctx context.Context, plan execution.Plan, s signer.Signer) execution.Result
}

type Journal interface {
	Save(ctx context.Context, rec execution.Record) error
}

type Deps struct {
	Wallets  wallet.Wallets
	Builder  Previewer
	Pending  pending.Store
	Executor Executor
	// Journal is optional.
	Journal Journal
	// Parser is only needed by OnText.
	Parser intent.Parser
	Logger zerolog.Logger
}

type Service struct {
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Wallets == nil:
		return nil, fmt.Errorf("confirm service: wallets are required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("confirm service: preview builder is required")
	case deps.Pending == nil:
		return nil, fmt.Errorf("confirm service: pending store is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("confirm service: executor is required")
	}
	if deps.Parser == nil {
		deps.Parser = intent.JSONParser{}
	}
	return &Service{
		deps:   deps,
		now:    time.Now,
		logger: deps.Logger.With().Str("component", "confirm").Logger(),
	}, nil
}

// OnText parses free text and continues as OnIntent. Ambiguous text is
// answered with a request to rephrase and builds nothing.
func (s *Service) OnText(ctx context.Context, userID, text string) (Reply, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "confirm", "yes":
		return s.OnConfirm(ctx, userID)
	case "cancel", "no":
		return s.OnCancel(ctx, userID)
	}
	in, err := s.deps.Parser.Parse(ctx, text)
	if err != nil {
		if clierr.Is(err, clierr.CodeAmbiguous) {
			return Reply{State: StateRejected, Message: msgRephrase}, err
		}
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}
	return s.OnIntent(ctx, userID, in)
}

// OnIntent previews an action and parks it as the user's pending action,
// replacing any earlier one.
func (s *Service) OnIntent(ctx context.Context, userID string, in intent.Intent) (Reply, error) {
	logger := log.ForUser(s.logger, userID).With().Str("kind", string(in.Kind)).Logger()
	owner, err := s.deps.Wallets.Address(ctx, userID)
	if err != nil {
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}
	p, err := s.deps.Builder.Build(ctx, owner.Hex(), in)
	if err != nil {
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}

	prev, hadPrev, err := s.deps.Pending.PeekKind(ctx, userID)
	if err != nil {
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}
	if err := s.deps.Pending.Put(ctx, userID, pending.PendingAction{UserID: userID, Preview: p, CreatedAt: s.now().UTC()}); err != nil {
		err = clierr.Wrap(clierr.CodeInternal, "save pending action", err)
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}

	reply := Reply{State: StatePreviewed, Preview: &p, Message: p.Summary}
	if hadPrev {
		metrics.PendingOutcomes.WithLabelValues("superseded").Inc()
		reply.Superseded = prev
		reply.Message = fmt.Sprintf("Replaced your previous pending %s.\n%s", prev, p.Summary)
	}
	logger.Info().Str("preview_id", p.ID).Bool("superseded", hadPrev).Msg("action pending confirmation")
	return reply, nil
}

// OnConfirm executes the pending action exactly once. The slot is emptied
// before anything is signed, so a repeated confirm finds nothing.
func (s *Service) OnConfirm(ctx context.Context, userID string) (Reply, error) {
	action, ok, err := s.deps.Pending.Take(ctx, userID)
	if err != nil {
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}
	if !ok {
		metrics.PendingOutcomes.WithLabelValues("empty").Inc()
		return Reply{State: StateNothingPending, Message: msgExpired},
			clierr.New(clierr.CodeNothingPending, "no pending action to confirm")
	}
	metrics.PendingOutcomes.WithLabelValues("confirmed").Inc()
	p := action.Preview
	logger := log.ForUser(s.logger, userID).With().Str("kind", string(p.Kind)).Str("preview_id", p.ID).Logger()

	txSigner, err := s.deps.Wallets.Signer(ctx, userID)
	if err != nil {
		return Reply{State: StateRejected, Preview: &p, Message: errorMessage(err)}, err
	}
	if !strings.EqualFold(txSigner.Address().Hex(), p.Owner) {
		err := clierr.New(clierr.CodeSigner, fmt.Sprintf("wallet %s no longer matches the previewed address %s", txSigner.Address().Hex(), p.Owner))
		return Reply{State: StateRejected, Preview: &p, Message: errorMessage(err)}, err
	}

	res := s.deps.Executor.Execute(ctx, p.Payload, txSigner)
	s.journal(ctx, logger, execution.Record{
		ExecutionID: res.ExecutionID,
		UserID:      userID,
		Kind:        string(p.Kind),
		PreviewID:   p.ID,
		Summary:     p.Summary,
		Result:      res,
		CreatedAt:   s.now().UTC(),
	})
	logger.Info().Str("execution_id", res.ExecutionID).Str("status", string(res.Status)).Int("transactions", len(res.Txs)).Msg("pending action executed")
	msg := res.Summary()
	if link := trackingLink(p.Kind, res); link != "" {
		msg += "\nTrack the transfer at " + link
	}
	return Reply{State: StateConfirmed, Preview: &p, Result: &res, Message: msg}, res.Err()
}

// trackingLink points at the bridge explorer for the transfer's source
// transaction, once one was broadcast.
func trackingLink(kind intent.Kind, res execution.Result) string {
	if kind != intent.KindTransfer {
		return ""
	}
	for i := len(res.Txs) - 1; i >= 0; i-- {
		if res.Txs[i].Step == execution.StepTypeCall {
			return registry.BungeeTxScanURL + res.Txs[i].Hash
		}
	}
	return ""
}

// OnCancel discards the pending action without touching the chain.
func (s *Service) OnCancel(ctx context.Context, userID string) (Reply, error) {
	action, ok, err := s.deps.Pending.Take(ctx, userID)
	if err != nil {
		return Reply{State: StateRejected, Message: errorMessage(err)}, err
	}
	if !ok {
		metrics.PendingOutcomes.WithLabelValues("empty").Inc()
		return Reply{State: StateNothingPending, Message: msgNothingToCancel},
			clierr.New(clierr.CodeNothingPending, "no pending action to cancel")
	}
	metrics.PendingOutcomes.WithLabelValues("cancelled").Inc()
	s.logger.Info().Str("user_id", userID).Str("preview_id", action.Preview.ID).Msg("pending action cancelled")
	return Reply{State: StateCancelled, Preview: &action.Preview, Message: msgCancelled}, nil
}

// Pending reports the kind of the user's pending action, if any.
func (s *Service) Pending(ctx context.Context, userID string) (intent.Kind, bool, error) {
	return s.deps.Pending.PeekKind(ctx, userID)
}

func (s *Service) journal(ctx context.Context, logger zerolog.Logger, rec execution.Record) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.Save(ctx, rec); err != nil {
		logger.Error().Err(err).Str("execution_id", rec.ExecutionID).Msg("journal execution failed")
	}
}

func errorMessage(err error) string {
	cErr, ok := clierr.As(err)
	if !ok {
		return "Something went wrong: " + err.Error()
	}
	switch cErr.Code {
	case clierr.CodeInvalidIntent:
		return "Invalid request: " + cErr.Message
	case clierr.CodeNoWallet:
		return "You don't have a wallet yet. Create or import one first."
	case clierr.CodeBlocked:
		return "This action is disabled: " + cErr.Message
	case clierr.CodeProvider, clierr.CodeUnavailable, clierr.CodeRateLimited:
		return "Could not price this action right now: " + cErr.Error()
	default:
		return cErr.Error()
	}
}
