package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/grouper/internal/config"
)

// Server serves health endpoints and Prometheus metrics on the admin port, apart
// from the grouping APIs.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   chi.Router
	server   *http.Server
	registry RegistryReporter
	checkers []Checker
}

// NewServer builds the admin server. registry may be nil; when set and enabled in
// cfg, the readiness response lists the grouping configurations of the process.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, registry RegistryReporter, checkers ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.ExposeRegistry {
		registry = nil
	}

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		checkers: checkers,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.NoCache)
	r.Get(cfg.LivenessPath, s.liveness)
	r.Get(cfg.ReadinessPath, s.readiness)
	r.Method(http.MethodGet, cfg.MetricsPath, promhttp.Handler())
	s.router = r

	return s
}

// Start listens on the configured port in the background.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         net.JoinHostPort("", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  3 * s.cfg.Timeout,
	}

	go func() {
		s.logger.Info("observability server listening",
			slog.String("addr", s.server.Addr),
			slog.String("readiness_path", s.cfg.ReadinessPath),
			slog.String("metrics_path", s.cfg.MetricsPath),
			slog.Int("checkers", len(s.checkers)),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server stopped", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server. It is a no-op when Start was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.server.Shutdown(ctx)
}
