package app

import (
	"context"
	"errors"
	"strings"

	"github.com/ggonzalez94/defi-intents/internal/confirm"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/spf13/cobra"
)

type pendingStatus struct {
	UserID  string      `json:"user_id"`
	Pending bool        `json:"pending"`
	Kind    intent.Kind `json:"kind,omitempty"`
}

func (s *runtimeState) newPreviewCommand() *cobra.Command {
	var params []string
	var raw string
	cmd := &cobra.Command{
		Use:   "preview <kind>",
		Short: "Preview an action and park it until confirm or cancel",
		Example: "  defi-intents preview transfer --param from_chain=avalanche --param to_chain=arbitrum --param from_token=USDC --param to_token=USDC --param amount=25\n" +
			"  defi-intents preview position_open --param pair=AVAX/USD --param side=long --param size_usd=100 --param collateral_usd=25",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := buildIntent(cmd.Context(), args, params, raw)
			if err != nil {
				return err
			}
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := p.service.OnIntent(cmd.Context(), s.settings.UserID, in)
			return s.emitReply(trimRootPath(cmd.CommandPath()), reply, err)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Action parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&raw, "intent", "", `Structured intent JSON, e.g. {"kind":"yield_withdraw","params":{"percentage":50}}`)
	return cmd
}

func (s *runtimeState) newTextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <message>",
		Short: "Handle a chat message: an intent, confirm or cancel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := p.service.OnText(cmd.Context(), s.settings.UserID, strings.Join(args, " "))
			return s.emitReply(trimRootPath(cmd.CommandPath()), reply, err)
		},
	}
	return cmd
}

func (s *runtimeState) newConfirmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Execute the pending action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := p.service.OnConfirm(cmd.Context(), s.settings.UserID)
			return s.emitReply(trimRootPath(cmd.CommandPath()), reply, err)
		},
	}
	return cmd
}

func (s *runtimeState) newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Discard the pending action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := p.service.OnCancel(cmd.Context(), s.settings.UserID)
			return s.emitReply(trimRootPath(cmd.CommandPath()), reply, err)
		},
	}
	return cmd
}

func (s *runtimeState) newPendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show whether an action is waiting for confirmation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			kind, ok, err := p.service.Pending(cmd.Context(), s.settings.UserID)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read pending action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), pendingStatus{UserID: s.settings.UserID, Pending: ok, Kind: kind}, nil)
		},
	}
	return cmd
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var limit int
	var executionID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled executions for the user, or show one by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be positive")
			}
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			if executionID != "" {
				rec, err := p.journal.Get(cmd.Context(), executionID)
				if errors.Is(err, execution.ErrRecordNotFound) || (err == nil && rec.UserID != s.settings.UserID) {
					return clierr.New(clierr.CodeUsage, "no execution "+executionID+" for user "+s.settings.UserID)
				}
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "read execution", err)
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec, nil)
			}
			records, err := p.journal.List(cmd.Context(), s.settings.UserID, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list executions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of executions")
	cmd.Flags().StringVar(&executionID, "id", "", "Show a single execution")
	return cmd
}

// emitReply renders a conversation turn. A failed turn still carries the
// reply so the user sees the message and any broadcast transactions.
func (s *runtimeState) emitReply(commandPath string, reply confirm.Reply, err error) error {
	var warnings []string
	if reply.Preview != nil {
		warnings = reply.Preview.Warnings
	}
	if err != nil {
		s.lastData = reply
		s.lastWarnings = warnings
		return err
	}
	return s.emitSuccess(commandPath, reply, warnings)
}

// buildIntent assembles an intent from a kind and key=value pairs, or from
// a structured JSON intent.
func buildIntent(ctx context.Context, args, params []string, raw string) (intent.Intent, error) {
	if strings.TrimSpace(raw) != "" {
		if len(args) > 0 || len(params) > 0 {
			return intent.Intent{}, clierr.New(clierr.CodeUsage, "use either --intent or a kind with --param, not both")
		}
		return intent.JSONParser{}.Parse(ctx, raw)
	}
	if len(args) == 0 {
		return intent.Intent{}, clierr.New(clierr.CodeUsage, "preview requires an action kind or --intent")
	}
	values := make(map[string]any, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return intent.Intent{}, clierr.New(clierr.CodeUsage, "--param must be key=value, got "+p)
		}
		values[key] = strings.TrimSpace(value)
	}
	return intent.New(intent.ParseKind(args[0]), values), nil
}
