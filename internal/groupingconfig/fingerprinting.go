package groupingconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/fingerprinting"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/strategy"
)

const fingerprintingCachePrefix = "fingerprinting-rules:"

// FingerprintingLoader resolves the server-side fingerprinting rules of a project.
type FingerprintingLoader struct {
	cache     cache.Cache
	defaultID string
}

// NewFingerprintingLoader uses defaultID when neither the caller nor the project names a config.
func NewFingerprintingLoader(c cache.Cache, defaultID string) *FingerprintingLoader {
	return &FingerprintingLoader{cache: c, defaultID: defaultID}
}

// BasesForProject returns the built-in rule sets of the effective configuration:
// configID if given, else the project's primary config, else the default.
func (f *FingerprintingLoader) BasesForProject(settings Settings, configID string) []string {
	for _, id := range []string{configID, settings.Option(OptionGroupingConfig), f.defaultID, strategy.DefaultID()} {
		if id == "" {
			continue
		}
		if tmpl, err := strategy.Lookup(id); err == nil {
			return slices.Clone(tmpl.FingerprintingBases)
		}
	}
	return nil
}

// RulesForProject merges the project's custom rules with the configuration's bases.
// Unparseable custom rules degrade to an empty custom rule set, and that outcome
// is cached like a successful parse.
func (f *FingerprintingLoader) RulesForProject(ctx context.Context, settings Settings, configID string) (*fingerprinting.Rules, error) {
	bases := f.BasesForProject(settings, configID)

	raw := settings.Option(OptionFingerprintingRules)
	if raw == "" {
		return fingerprinting.Empty(bases)
	}

	log := logger.FromContext(ctx)
	key := fingerprintingCachePrefix + contentHash(raw)

	if f.cache != nil {
		data, found, err := f.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.ConfigFallbacks.WithLabelValues("fingerprinting", "cache_error").Inc()
			log.Warn("fingerprinting cache read failed", slog.Any("error", err))
		case found:
			rules, err := fingerprinting.FromJSON(data, bases)
			if err == nil {
				return rules, nil
			}
			log.Warn("discarding undecodable fingerprinting cache entry", slog.Any("error", err))
		}
	}

	rules, err := fingerprinting.Parse(raw, bases)
	if err != nil {
		var invalid *fingerprinting.InvalidFingerprintingError
		if !errors.As(err, &invalid) {
			return nil, fmt.Errorf("failed to compile fingerprinting rules: %w", err)
		}
		observability.ConfigFallbacks.WithLabelValues("fingerprinting", "invalid_rules").Inc()
		log.Warn("invalid project fingerprinting rules, ignoring", slog.Any("error", err))

		if rules, err = fingerprinting.Empty(bases); err != nil {
			return nil, err
		}
	}

	if f.cache != nil {
		data, err := rules.ToJSON()
		if err == nil {
			err = f.cache.Set(ctx, key, data)
		}
		if err != nil {
			log.Warn("fingerprinting cache write failed", slog.Any("error", err))
		}
	}
	return rules, nil
}
