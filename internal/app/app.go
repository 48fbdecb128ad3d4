// Package app wires the shared dependencies of the grouper binaries: project
// options store, tiered cache and grouping service, plus their health checks
// and metric collectors.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/database"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/validation"
)

// monitorInterval is how often pool and cache statistics are exported.
const monitorInterval = 15 * time.Second

// Components holds the assembled dependencies of a process.
type Components struct {
	Options  store.ProjectOptionsRepository
	Cache    cache.Cache
	Grouping *grouper.Service
	Checkers []observability.Checker

	closers []func()
}

// Build connects to the configured backends. Without a database the options
// live in memory; without Redis the cache is process-local. Collectors run
// until ctx is cancelled.
func Build(ctx context.Context, log *slog.Logger, cfg *config.Config) (*Components, error) {
	validation.AssertNotNil(cfg, "config")
	if log == nil {
		log = slog.Default()
	}

	c := &Components{}

	if cfg.Database.IsConfigured() {
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		pg := store.NewPostgresStore(pool)
		c.Options = pg
		c.Checkers = append(c.Checkers, pg)
		go database.RunPoolMonitor(ctx, pool, monitorInterval)
	} else {
		log.Warn("no database configured, project options are kept in memory")
		c.Options = store.NewMemoryStore()
	}

	l1, err := cache.NewMemoryCache(cfg.Cache.L1Capacity, cfg.Cache.L1TTL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}
	c.closers = append(c.closers, l1.Close)
	go l1.RunMetricsCollector(ctx, monitorInterval)

	var l2 cache.Cache
	if cfg.Redis.IsConfigured() {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rc := cache.NewRedisCache(client, cfg.Cache.KeyPrefix, cfg.Cache.L2TTL)
		c.closers = append(c.closers, func() { _ = rc.Close() })
		c.Checkers = append(c.Checkers, rc)
		go cache.RunPoolMonitor(ctx, client, monitorInterval)
		l2 = rc
	} else {
		log.Warn("no redis configured, compiled configs are cached per process only")
	}

	c.Cache = cache.NewTiered(l1, l2)
	c.Grouping = grouper.NewService(c.Options, c.Cache, &cfg.Grouping)
	c.Checkers = append(c.Checkers, c.Grouping)
	return c, nil
}

// Close releases every backend in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
