package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/logger"
)

// NewRedisClient connects the L2 cache client. The server is pinged with
// exponential backoff so a process waits for Redis to come up instead of
// starting with a cold shared cache it cannot write to.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	if err := pingWithBackoff(ctx, client, cfg.PingMaxRetries, cfg.PingBackoff); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// redisOptions maps the config onto go-redis options. A URL takes precedence over
// host and port and may carry its own credentials and database.
func redisOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts.Addr = cfg.Address()
		opts.Password = cfg.Password
		opts.DB = cfg.DB
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func pingWithBackoff(ctx context.Context, client *redis.Client, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	log := logger.FromContext(ctx).With(slog.String("addr", client.Options().Addr))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, client.Options().DialTimeout+time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			log.Info("connected to redis", slog.Int("attempt", attempt))
			return nil
		}

		log.Warn("redis ping failed", slog.Int("attempt", attempt), slog.Int("max_attempts", attempts), slog.Any("error", lastErr))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis connection aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to connect to redis after %d attempts: %w", attempts, lastErr)
}
