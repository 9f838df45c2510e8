// Package api exposes the confirmation service over HTTP for chat
// front-ends and other callers that cannot link the Go packages.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/actions"
	"github.com/ggonzalez94/defi-intents/internal/confirm"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/metrics"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Conversation is the subset of confirm.Service the API drives.
type Conversation interface {
	OnIntent(ctx context.Context, userID string, in intent.Intent) (confirm.Reply, error)
	OnText(ctx context.Context, userID, text string) (confirm.Reply, error)
	OnConfirm(ctx context.Context, userID string) (confirm.Reply, error)
	OnCancel(ctx context.Context, userID string) (confirm.Reply, error)
	Pending(ctx context.Context, userID string) (intent.Kind, bool, error)
}

type History interface {
	List(ctx context.Context, userID string, limit int) ([]execution.Record, error)
}

type Config struct {
	ListenAddr     string
	RateLimitPerIP int
	Conversation   Conversation
	Registry       *actions.Registry
	// History and Bridge are optional; their routes answer 501 when unset.
	History History
	Bridge  providers.BridgeProvider
	Logger  zerolog.Logger
}

type Server struct {
	cfg    Config
	http   *http.Server
	logger zerolog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Conversation == nil {
		return nil, errors.New("api: conversation service is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = actions.Default()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	s := &Server{cfg: cfg, logger: cfg.Logger.With().Str("component", "api").Logger()}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Confirm waits on the chain when receipts are awaited.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimitPerIP > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimitPerIP,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "60")
					writeError(w, r, "", http.StatusTooManyRequests, errRateLimited)
				}),
			))
		}
		r.Get("/kinds", s.handleKinds)
		r.Get("/bridge/status", s.handleBridgeStatus)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/intents", s.handleIntent)
			r.Post("/text", s.handleText)
			r.Get("/pending", s.handlePending)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/cancel", s.handleCancel)
			r.Get("/history", s.handleHistory)
		})
	})
	return r
}

// Start listens until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("api listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
