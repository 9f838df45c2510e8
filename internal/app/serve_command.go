package app

import (
	"context"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/api"
	"github.com/ggonzalez94/defi-intents/internal/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation API over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			addr := s.settings.ListenAddr
			if listen != "" {
				addr = listen
			}
			srv, err := api.New(api.Config{
				ListenAddr:     addr,
				RateLimitPerIP: s.settings.RateLimitPerIP,
				Conversation:   p.service,
				Registry:       p.registry,
				History:        p.journal,
				Bridge:         p.bridge,
				Logger:         log.Base(),
			})
			if err != nil {
				return err
			}
			logger := log.WithComponent("serve")

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				logger.Info().Str("addr", addr).Str("pending_backend", s.settings.PendingBackend).Msg("starting api")
				return srv.Start()
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				logger.Info().Msg("shutting down api")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	return cmd
}
