package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the server's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the HTTP transport: it owns the mux, middleware chain, and
// graceful shutdown for the validate/admin/health/metrics surface. Its
// metrics collectors are the same instance passed to Handlers, so a
// request is counted exactly once regardless of which component reads it.
type Server struct {
	addr   string
	logger *slog.Logger

	handlers      *Handlers
	healthChecker *HealthChecker
	metrics       *Metrics
	adminSecret   string

	httpServer *http.Server
}

// New builds a Server. adminSecret gates every /v1/mint-key, /v1/revoke-key,
// /v1/list-keys, and /v1/admin/* route; /v1/validate-key and /health are
// never gated. metrics must be the same instance passed to NewHandlers.
func New(handlers *Handlers, healthChecker *HealthChecker, metrics *Metrics, adminSecret string, opts ...Option) *Server {
	s := &Server{
		addr:          ":8080",
		logger:        slog.Default(),
		handlers:      handlers,
		healthChecker: healthChecker,
		metrics:       metrics,
		adminSecret:   adminSecret,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/validate-key", s.handlers.HandleValidateKey)
	mux.Handle("GET /health", s.healthChecker.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	adminGate := AdminGate(s.adminSecret)
	mux.Handle("POST /v1/mint-key", adminGate(http.HandlerFunc(s.handlers.HandleMintKey)))
	mux.Handle("POST /v1/revoke-key", adminGate(http.HandlerFunc(s.handlers.HandleRevokeKey)))
	mux.Handle("GET /v1/list-keys", adminGate(http.HandlerFunc(s.handlers.HandleListKeys)))
	mux.Handle("POST /v1/admin/create-project", adminGate(http.HandlerFunc(s.handlers.HandleCreateProject)))
	mux.Handle("GET /v1/admin/project/{project_id}", adminGate(http.HandlerFunc(s.handlers.HandleGetProject)))

	chain := RequestIDMiddleware(s.logger)(MetricsMiddleware(s.metrics)(mux))
	return chain
}

// Start builds the route chain and begins serving, blocking until ctx is
// canceled, then shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
