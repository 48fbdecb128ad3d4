package config

import (
	"fmt"
	"time"
)

// WarmerConfig holds settings for the cache warmer, which periodically loads the
// grouping configuration of every project into the shared cache.
type WarmerConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Interval between full warm-up passes.
	Interval time.Duration `envconfig:"INTERVAL" default:"5m" validate:"gt=0"`

	// Concurrency is the number of projects warmed in parallel.
	Concurrency int `envconfig:"CONCURRENCY" default:"8" validate:"min=1,max=256"`

	// BatchSize is the number of project options fetched per query.
	BatchSize int `envconfig:"BATCH_SIZE" default:"500" validate:"min=1"`

	// ProjectTimeout bounds the work done for a single project.
	ProjectTimeout time.Duration `envconfig:"PROJECT_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Validate checks WarmerConfig fields for correctness.
func (c *WarmerConfig) Validate() error {
	if c.Enabled && c.ProjectTimeout > c.Interval {
		return fmt.Errorf("warmer project timeout (%s) cannot exceed interval (%s)", c.ProjectTimeout, c.Interval)
	}
	return nil
}
