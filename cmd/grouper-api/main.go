// Command grouper-api serves the grouping REST API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/grouper/internal/app"
	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/httpapi"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("grouper-api exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	components, err := app.Build(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	obs := observability.NewServer(log, &cfg.Observability, components.Grouping, components.Checkers...)
	obs.Start()

	httpCfg := cfg.Server.HTTP
	api := httpapi.NewAPI(components.Grouping, httpapi.Options{
		APIKeyHash:   httpCfg.APIKeyHash,
		SkipAuth:     httpCfg.APIKeyHash == "" && cfg.App.Environment != config.EnvironmentProduction,
		MaxBodyBytes: httpCfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              httpCfg.Address(),
		Handler:           api.Router,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
		MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http api", slog.String("addr", srv.Addr), slog.Bool("tls", httpCfg.TLSEnabled))
		var err error
		if httpCfg.TLSEnabled {
			err = srv.ListenAndServeTLS(httpCfg.TLSCert, httpCfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down", slog.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("observability server shutdown failed", slog.String("error", err.Error()))
	}
	return shutdownErr
}
