package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/config"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/log"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/out"
	"github.com/ggonzalez94/defi-intents/internal/schema"
	"github.com/ggonzalez94/defi-intents/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	ctx    context.Context
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		ctx:    context.Background(),
	}
}

// WithContext sets the context commands run under; main cancels it on
// SIGINT and SIGTERM.
func (r *Runner) WithContext(ctx context.Context) *Runner {
	r.ctx = ctx
	return r
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	root     *cobra.Command
	pipe     *pipeline

	lastCommand  string
	lastWarnings []string
	// lastData is attached to error envelopes so a failed confirm still
	// shows the reply and any transaction hashes.
	lastData any
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(r.ctx)
	err = normalizeRunError(err)
	if state.pipe != nil {
		state.pipe.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Preview, confirm and execute DeFi actions on-chain",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			log.Configure(log.Config{
				Level:  settings.LogLevel,
				Format: settings.LogFormat,
				Output: s.runner.stderr,
			})
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})
	config.BindFlags(cmd.PersistentFlags(), &s.flags)

	cmd.AddCommand(s.newPreviewCommand())
	cmd.AddCommand(s.newTextCommand())
	cmd.AddCommand(s.newConfirmCommand())
	cmd.AddCommand(s.newCancelCommand())
	cmd.AddCommand(s.newPendingCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newVaultCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newKindsCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// pipeline builds the action pipeline on first use. Commands that only read
// static metadata never open stores or dial RPC.
func (s *runtimeState) pipeline(ctx context.Context) (*pipeline, error) {
	if s.pipe != nil {
		return s.pipe, nil
	}
	p, err := buildPipeline(ctx, s.settings)
	if err != nil {
		return nil, err
	}
	s.pipe = p
	return p, nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	var kinds bool
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command or action kind schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kinds {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), schema.Kinds(s.kindsRegistry()), nil)
			}
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().BoolVar(&kinds, "kinds", false, "Describe action kinds and their parameters instead of commands")
	return cmd
}

func (s *runtimeState) outputOptions() out.Options {
	return out.Options{
		Mode:        s.settings.OutputMode,
		Select:      s.settings.SelectFields,
		ResultsOnly: s.settings.ResultsOnly,
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.outputOptions())
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		UserID:    s.settings.UserID,
	}
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	body := &model.ErrorBody{
		Code:    clierr.ExitCode(err),
		Type:    "internal_error",
		Message: err.Error(),
	}
	if cErr, ok := clierr.As(err); ok {
		body.Type = clierr.TypeName(cErr.Code)
		body.Field = cErr.Field
		body.Message = cErr.Message
		if cErr.Cause != nil {
			body.Message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  false,
		Data:     s.lastData,
		Error:    body,
		Warnings: s.lastWarnings,
		Meta:     s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, s.outputOptions().ErrorOptions())
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
