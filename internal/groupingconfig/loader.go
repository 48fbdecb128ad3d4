// Package groupingconfig resolves the grouping configuration of a project: the
// versioned configuration id, the effective enhancement blob and the fingerprinting
// rules. Compiled results are cached by content hash so identical project rules are
// compiled once across the fleet.
package groupingconfig

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/enhancer"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// Project option keys read by the loaders.
const (
	OptionGroupingConfig          = "sentry:grouping_config"
	OptionSecondaryGroupingConfig = "sentry:secondary_grouping_config"
	OptionSecondaryGroupingExpiry = "sentry:secondary_grouping_expiry"
	OptionGroupingEnhancements    = "sentry:grouping_enhancements"
	OptionFingerprintingRules     = "sentry:fingerprinting_rules"
)

// GroupingConfig is the serialized configuration persisted with grouped events.
type GroupingConfig = event.GroupingConfig

// Settings exposes the options of one project.
type Settings interface {
	Option(key string) string
}

// Kind selects where a Loader reads its configuration id from.
type Kind uint8

const (
	// KindPrimary is the active config that drives real grouping.
	KindPrimary Kind = iota
	// KindSecondary is the previous config, kept to find existing groups after a config change.
	KindSecondary
	// KindBackground is evaluated for measurement only and never affects grouping.
	KindBackground
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	case KindBackground:
		return "background"
	default:
		return "unknown"
	}
}

func (k Kind) cachePrefix() string {
	switch k {
	case KindSecondary:
		return "secondary-grouping-enhancements:"
	case KindBackground:
		return "background-grouping-enhancements:"
	default:
		return "grouping-enhancements:"
	}
}

// Loader computes the GroupingConfig of a project for one Kind.
type Loader struct {
	kind     Kind
	cache    cache.Cache
	configID string
}

// NewPrimaryLoader reads sentry:grouping_config and falls back to defaultID when unset.
func NewPrimaryLoader(c cache.Cache, defaultID string) *Loader {
	return &Loader{kind: KindPrimary, cache: c, configID: defaultID}
}

// NewSecondaryLoader reads sentry:secondary_grouping_config. It has no fallback.
func NewSecondaryLoader(c cache.Cache) *Loader {
	return &Loader{kind: KindSecondary, cache: c}
}

// NewBackgroundLoader always resolves to the process-wide configID.
func NewBackgroundLoader(c cache.Cache, configID string) *Loader {
	return &Loader{kind: KindBackground, cache: c, configID: configID}
}

// Kind returns the loader kind.
func (l *Loader) Kind() Kind { return l.kind }

// ConfigID returns the configuration id the loader would use for settings.
// Unknown ids are reported with grouping.ErrConfigurationNotFound.
func (l *Loader) ConfigID(settings Settings) (string, error) {
	var id string
	switch l.kind {
	case KindPrimary:
		id = settings.Option(OptionGroupingConfig)
		if id == "" {
			id = l.configID
		}
	case KindSecondary:
		id = settings.Option(OptionSecondaryGroupingConfig)
	case KindBackground:
		id = l.configID
	}

	if !strategy.IsValid(id) {
		return "", fmt.Errorf("%w: %s config %q", grouping.ErrConfigurationNotFound, l.kind, id)
	}
	return id, nil
}

// ConfigDict resolves the configuration id and the effective enhancement blob.
// Invalid project enhancement rules never fail the call; they degrade to the
// base-only default blob.
func (l *Loader) ConfigDict(ctx context.Context, settings Settings) (GroupingConfig, error) {
	id, err := l.ConfigID(settings)
	if err != nil {
		return GroupingConfig{}, err
	}

	enhancements, err := l.enhancements(ctx, id, settings.Option(OptionGroupingEnhancements))
	if err != nil {
		return GroupingConfig{}, err
	}
	return GroupingConfig{ID: id, Enhancements: enhancements}, nil
}

func (l *Loader) enhancements(ctx context.Context, id, raw string) (string, error) {
	tmpl, err := strategy.Lookup(id)
	if err != nil {
		return "", err
	}

	log := logger.FromContext(ctx).With(slog.String("loader", l.kind.String()), slog.String("config", id))
	key := enhancementsCacheKey(l.kind, tmpl.EnhancementsBase, raw)

	if l.cache != nil {
		blob, found, err := l.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.ConfigFallbacks.WithLabelValues("enhancements", "cache_error").Inc()
			log.Warn("enhancements cache read failed", slog.Any("error", err))
		case found:
			return string(blob), nil
		}
	}

	var blob string
	compiled, err := tmpl.ParseEnhancements(raw)
	if err == nil {
		blob, err = compiled.Dumps()
	}
	if err != nil {
		var invalid *enhancer.InvalidEnhancementsError
		if !errors.As(err, &invalid) {
			return "", fmt.Errorf("failed to compile enhancements for %q: %w", id, err)
		}
		observability.ConfigFallbacks.WithLabelValues("enhancements", "invalid_rules").Inc()
		log.Warn("invalid project enhancements, using defaults", slog.Any("error", err))

		if blob, err = DefaultEnhancements(id); err != nil {
			return "", err
		}
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, []byte(blob)); err != nil {
			log.Warn("enhancements cache write failed", slog.Any("error", err))
		}
	}
	return blob, nil
}

// enhancementsCacheKey versions the key with the enhancer format so a format
// bump never reads stale blobs.
func enhancementsCacheKey(kind Kind, base, raw string) string {
	return kind.cachePrefix() + strconv.Itoa(enhancer.LatestVersion) + ":" + contentHash(base+"|"+raw)
}

func contentHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
