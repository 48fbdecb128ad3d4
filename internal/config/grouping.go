package config

import (
	"fmt"

	"github.com/rafaeljc/grouper/internal/strategy"
)

// GroupingConfig holds the process-wide grouping defaults.
type GroupingConfig struct {
	// DefaultConfigID is used for projects without a configured grouping config.
	DefaultConfigID string `envconfig:"DEFAULT_CONFIG_ID" default:"newstyle:2023-01-11"`

	// BackgroundConfigID is evaluated on a sample of events to compare against the primary result.
	BackgroundConfigID string `envconfig:"BACKGROUND_CONFIG_ID"`

	// BackgroundSampleRate is the fraction of events evaluated with the background config.
	BackgroundSampleRate float64 `envconfig:"BACKGROUND_SAMPLE_RATE" default:"0" validate:"min=0,max=1"`

	// AllowCustomTitle lets fingerprinting rules override the event title.
	AllowCustomTitle bool `envconfig:"ALLOW_CUSTOM_TITLE" default:"true"`
}

// Validate checks that every referenced grouping config exists.
func (c *GroupingConfig) Validate() error {
	if !strategy.IsValid(c.DefaultConfigID) {
		return fmt.Errorf("unknown default grouping config %q", c.DefaultConfigID)
	}

	if c.BackgroundConfigID != "" && !strategy.IsValid(c.BackgroundConfigID) {
		return fmt.Errorf("unknown background grouping config %q", c.BackgroundConfigID)
	}

	if c.BackgroundSampleRate > 0 && c.BackgroundConfigID == "" {
		return fmt.Errorf("background sample rate set without a background grouping config")
	}

	return nil
}
