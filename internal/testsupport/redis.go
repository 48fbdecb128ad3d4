package testsupport

import (
	"context"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/config"
)

// RedisContainer is an ephemeral Redis 7 instance backing the L2 rule cache.
type RedisContainer struct {
	Container testcontainers.Container
	// Endpoint is the host:port mapped to 6379.
	Endpoint string
	// Client is opened with cache.NewRedisClient from a redis:// URL.
	Client *goredis.Client
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer starts Redis and connects to it the way the binaries do.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	client, err := cache.NewRedisClient(ctx, &config.RedisConfig{
		URL:            "redis://" + endpoint + "/0",
		PoolSize:       10,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{Container: ctr, Endpoint: endpoint, Client: client}, nil
}

// CachedKeys lists, in sorted order, the keys stored under prefix.
func (c *RedisContainer) CachedKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys under %q: %w", prefix, err)
	}
	slices.Sort(keys)
	return keys, nil
}
