package groupingconfig

import (
	"context"
	"fmt"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// DefaultEnhancements returns the base-only enhancement blob of configID.
// An empty configID selects the registry default.
func DefaultEnhancements(configID string) (string, error) {
	if configID == "" {
		configID = strategy.DefaultID()
	}

	tmpl, err := strategy.Lookup(configID)
	if err != nil {
		return "", err
	}

	e, err := tmpl.DefaultEnhancements()
	if err != nil {
		return "", fmt.Errorf("failed to build default enhancements for %q: %w", configID, err)
	}
	return e.Dumps()
}

// DefaultGroupingConfigDict returns the dict of configID with its default enhancements.
// An empty configID selects the registry default.
func DefaultGroupingConfigDict(configID string) (GroupingConfig, error) {
	if configID == "" {
		configID = strategy.DefaultID()
	}

	enhancements, err := DefaultEnhancements(configID)
	if err != nil {
		return GroupingConfig{}, err
	}
	return GroupingConfig{ID: configID, Enhancements: enhancements}, nil
}

// LoadGroupingConfig turns a dict into an evaluable configuration. A nil dict
// loads the default configuration; a dict without id is malformed.
func LoadGroupingConfig(dict *GroupingConfig) (*strategy.Configuration, error) {
	if dict == nil {
		def, err := DefaultGroupingConfigDict("")
		if err != nil {
			return nil, err
		}
		dict = &def
	}

	if dict.ID == "" {
		return nil, fmt.Errorf("%w: missing configuration id", grouping.ErrMalformedConfig)
	}

	tmpl, err := strategy.Lookup(dict.ID)
	if err != nil {
		return nil, err
	}
	return tmpl.Build(dict.Enhancements)
}

// LoadDefaultGroupingConfig loads the registry default configuration.
func LoadDefaultGroupingConfig() (*strategy.Configuration, error) {
	return LoadGroupingConfig(nil)
}

// ConfigDictForEvent returns the configuration persisted with ev when present,
// so re-grouping reproduces the original result. Otherwise it resolves the
// project's primary configuration.
func (l *Loader) ConfigDictForEvent(ctx context.Context, ev *event.Event, settings Settings) (GroupingConfig, error) {
	if ev.GroupingConfig != nil && ev.GroupingConfig.ID != "" {
		return *ev.GroupingConfig, nil
	}
	return l.ConfigDict(ctx, settings)
}
