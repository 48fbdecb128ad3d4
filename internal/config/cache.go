package config

import (
	"fmt"
	"strings"
	"time"
)

// CacheConfig tunes the two cache tiers used for compiled grouping rules.
type CacheConfig struct {
	// L1Capacity is the maximum number of entries of the in-process cache.
	L1Capacity int `envconfig:"L1_CAPACITY" default:"10000" validate:"min=1"`

	// L1TTL bounds how long a local entry can outlive a change in Redis.
	L1TTL time.Duration `envconfig:"L1_TTL" default:"5m" validate:"gt=0"`

	// L2TTL is the Redis expiry. Zero keeps entries until evicted.
	L2TTL time.Duration `envconfig:"L2_TTL" default:"24h" validate:"min=0"`

	// KeyPrefix namespaces every Redis key written by grouper.
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"grouper:"`
}

// Validate checks CacheConfig fields for correctness.
func (c *CacheConfig) Validate() error {
	if strings.TrimSpace(c.KeyPrefix) != c.KeyPrefix {
		return fmt.Errorf("cache key prefix cannot contain leading or trailing whitespace")
	}
	return nil
}
