// Package warmer implements the background worker that periodically compiles the
// grouping configuration of every project and stores it in the shared cache, so
// the first event of a project after a deploy does not pay the parsing cost.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/validation"
)

// ProjectWarmer compiles and caches the configuration of one project.
type ProjectWarmer interface {
	Warm(ctx context.Context, opts *store.ProjectOptions) error
}

// Stats summarizes one warm-up pass.
type Stats struct {
	Warmed   int64
	Failed   int64
	Duration time.Duration
}

// Service orchestrates warm-up passes.
type Service struct {
	logger *slog.Logger
	config config.WarmerConfig
	repo   store.ProjectOptionsRepository
	target ProjectWarmer
}

// New creates a new warmer service.
func New(logger *slog.Logger, cfg *config.WarmerConfig, repo store.ProjectOptionsRepository, target ProjectWarmer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(cfg, "warmer config")
	validation.AssertDependency(repo, "project options repository")
	validation.AssertDependency(target, "project warmer")

	c := *cfg
	if c.Interval < time.Second {
		c.Interval = time.Minute
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 500
	}
	if c.ProjectTimeout <= 0 {
		c.ProjectTimeout = 10 * time.Second
	}

	return &Service{
		logger: logger.With(slog.String("component", "warmer")),
		config: c,
		repo:   repo,
		target: target,
	}
}

// Run starts the warm-up loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting warmer service",
		slog.String("interval", s.config.Interval.String()),
		slog.Int("concurrency", s.config.Concurrency),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("warmer service stopping...")
			return nil
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Service) runAndLog(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Retry on next tick.
		s.logger.Error("warm-up pass failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("warm-up pass completed",
		slog.Int64("warmed", stats.Warmed),
		slog.Int64("failed", stats.Failed),
		slog.String("duration", stats.Duration.String()),
	)
}

// RunOnce walks every project with options and warms it. Per-project failures
// are counted, not returned; only listing errors abort the pass.
func (s *Service) RunOnce(ctx context.Context) (Stats, error) {
	start := time.Now()
	defer func() {
		observability.WarmerRunDuration.Observe(time.Since(start).Seconds())
	}()

	var warmed, failed atomic.Int64
	var afterID int64

	for {
		batch, err := s.repo.ListProjectOptions(ctx, afterID, s.config.BatchSize)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to list project options after %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.Concurrency)
		for _, opts := range batch {
			g.Go(func() error {
				if err := s.warmProject(gctx, opts); err != nil {
					failed.Add(1)
					observability.WarmerProjectsTotal.WithLabelValues("error").Inc()
					s.logger.Warn("failed to warm project",
						slog.Int64("project_id", opts.ProjectID),
						slog.String("error", err.Error()),
					)
					return nil
				}
				warmed.Add(1)
				observability.WarmerProjectsTotal.WithLabelValues("success").Inc()
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}

		afterID = batch[len(batch)-1].ProjectID
		if len(batch) < s.config.BatchSize {
			break
		}
	}

	return Stats{Warmed: warmed.Load(), Failed: failed.Load(), Duration: time.Since(start)}, nil
}

func (s *Service) warmProject(ctx context.Context, opts *store.ProjectOptions) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProjectTimeout)
	defer cancel()
	return s.target.Warm(ctx, opts)
}
