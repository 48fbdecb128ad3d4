// Command grouper-warmer keeps the shared cache hydrated with every project's
// compiled grouping configuration.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/grouper/internal/app"
	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/warmer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("grouper-warmer exited with error", slog.String("error", err.Error()))
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

	if !cfg.Warmer.Enabled {
		log.Info("warmer disabled, exiting")
		return nil
	}

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

	svc := warmer.New(log, &cfg.Warmer, components.Options, components.Grouping)
	runErr := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("observability server shutdown failed", slog.String("error", err.Error()))
	}
	return runErr
}
