package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/config"
)

func TestRedisOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       config.RedisConfig
		wantAddr  string
		wantDB    int
		wantPass  string
		wantTLS   bool
		wantError bool
	}{
		{
			name:     "Should build the address from host and port",
			cfg:      config.RedisConfig{Host: "cache", Port: "6380", Password: "secret", DB: 3, PoolSize: 7},
			wantAddr: "cache:6380",
			wantDB:   3,
			wantPass: "secret",
		},
		{
			name:     "Should take credentials and database from the url",
			cfg:      config.RedisConfig{URL: "redis://:pw@redis.internal:6379/2", PoolSize: 7},
			wantAddr: "redis.internal:6379",
			wantDB:   2,
			wantPass: "pw",
		},
		{
			name:     "Should enable TLS for rediss urls",
			cfg:      config.RedisConfig{URL: "rediss://redis.internal:6379/0", PoolSize: 7},
			wantAddr: "redis.internal:6379",
			wantTLS:  true,
		},
		{
			name:     "Should enable TLS from config",
			cfg:      config.RedisConfig{Host: "cache", Port: "6379", TLSEnabled: true, PoolSize: 7},
			wantAddr: "cache:6379",
			wantTLS:  true,
		},
		{
			name:      "Should reject a malformed url",
			cfg:       config.RedisConfig{URL: "http://cache:6379"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			opts, err := redisOptions(&tt.cfg)

			// Assert
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantDB, opts.DB)
			assert.Equal(t, tt.wantPass, opts.Password)
			assert.Equal(t, tt.wantTLS, opts.TLSConfig != nil)
			assert.Equal(t, 7, opts.PoolSize)
		})
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := &config.RedisConfig{
		Host:           "127.0.0.1",
		Port:           "1",
		PoolSize:       1,
		DialTimeout:    50 * time.Millisecond,
		PingMaxRetries: 3,
		PingBackoff:    time.Hour,
	}

	// Act
	client, err := NewRedisClient(ctx, cfg)

	// Assert
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := NewRedisClient(context.Background(), nil)

	assert.Error(t, err)
}
