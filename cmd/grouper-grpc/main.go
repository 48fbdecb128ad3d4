// Command grouper-grpc serves the Grouping gRPC service used by ingestion workers.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/grouper/internal/app"
	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/grpcapi"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("grouper-grpc exited with error", slog.String("error", err.Error()))
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

	grpcCfg := cfg.Server.GRPC
	lis, err := net.Listen("tcp", grpcCfg.Address())
	if err != nil {
		return err
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcapi.RequestLoggerInterceptor(log),
			grpcapi.ObservabilityInterceptor(),
		),
		grpc.MaxConcurrentStreams(grpcCfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(grpcCfg.MaxRecvMsgBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             grpcCfg.KeepaliveTime,
			Timeout:          grpcCfg.KeepaliveTimeout,
			MaxConnectionAge: grpcCfg.MaxConnectionAge,
		}),
	)
	grpcapi.NewAPI(components.Grouping).Register(s)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting grpc api", slog.String("addr", grpcCfg.Address()))
		errCh <- s.Serve(lis)
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

	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.Stop()
	}

	return obs.Shutdown(shutdownCtx)
}
