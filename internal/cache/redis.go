package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/validation"
)

// RedisCache is the shared L2 cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. Every key is namespaced with prefix;
// a zero ttl stores entries without expiry.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	validation.AssertNotNil(client, "redis client")
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get fetches a value. redis.Nil is translated to a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		observability.CacheL2Requests.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	case err != nil:
		observability.CacheL2Requests.WithLabelValues("get", "error").Inc()
		return nil, false, fmt.Errorf("failed to get %q from redis: %w", key, err)
	}

	observability.CacheL2Requests.WithLabelValues("get", "hit").Inc()
	return value, true, nil
}

// Set stores a value with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		observability.CacheL2Requests.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("failed to set %q in redis: %w", key, err)
	}

	observability.CacheL2Requests.WithLabelValues("set", "ok").Inc()
	return nil
}

// healthKey is written under the cache prefix by Check.
const healthKey = "health:check"

// Name identifies the L2 cache as a readiness checker.
func (c *RedisCache) Name() string { return "redis" }

// Check round-trips a short-lived key under the cache prefix. A reachable but
// read-only replica fails it, since loaders must be able to store compiled configs.
func (c *RedisCache) Check(ctx context.Context) error {
	key := c.prefix + healthKey
	if err := c.client.Set(ctx, key, "1", 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write check failed: %w", err)
	}
	if err := c.client.Get(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis read check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// RunPoolMonitor exports the client's connection pool statistics until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	log := logger.FromContext(ctx)
	log.Debug("redis pool monitor started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastTimeouts uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := client.PoolStats()
			observability.CacheL2PoolConns.WithLabelValues("total").Set(float64(stats.TotalConns))
			observability.CacheL2PoolConns.WithLabelValues("idle").Set(float64(stats.IdleConns))
			if stats.Timeouts > lastTimeouts {
				observability.CacheL2PoolTimeouts.Add(float64(stats.Timeouts - lastTimeouts))
				lastTimeouts = stats.Timeouts
			}
		}
	}
}
