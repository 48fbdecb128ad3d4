// Package grouper orchestrates grouping for one event: it resolves project
// settings, applies server-side fingerprinting, picks the grouping configuration
// and computes the variants and hashes.
package grouper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/fingerprinting"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/strategy"
	"github.com/rafaeljc/grouper/internal/validation"
)

// Result is the outcome of grouping one event.
type Result struct {
	ProjectID int64
	Event     *event.Event
	Config    groupingconfig.GroupingConfig
	Variants  map[string]grouping.Variant
	Hashes    []string

	// SecondaryConfig and SecondaryHashes are set while a project is
	// transitioning between grouping configs.
	SecondaryConfig *groupingconfig.GroupingConfig
	SecondaryHashes []string
}

// ConfigurationInfo describes a registered grouping configuration.
type ConfigurationInfo struct {
	ID                  string   `json:"id"`
	EnhancementsBase    string   `json:"enhancements_base"`
	FingerprintingBases []string `json:"fingerprinting_bases"`
	Strategies          []string `json:"strategies"`
	IsDefault           bool     `json:"is_default"`
}

// Service is the grouping use-case consumed by the transports.
type Service struct {
	options        store.ProjectOptionsRepository
	primary        *groupingconfig.Loader
	secondary      *groupingconfig.Loader
	background     *groupingconfig.Loader
	fingerprinting *groupingconfig.FingerprintingLoader

	defaultID        string
	backgroundID     string
	backgroundRate   float64
	allowCustomTitle bool
	now              func() time.Time
}

// NewService wires the loaders on top of a shared cache. c may be nil to disable caching.
func NewService(options store.ProjectOptionsRepository, c cache.Cache, cfg *config.GroupingConfig) *Service {
	validation.AssertDependency(options, "project options repository")
	validation.AssertNotNil(cfg, "grouping config")

	s := &Service{
		options:          options,
		primary:          groupingconfig.NewPrimaryLoader(c, cfg.DefaultConfigID),
		secondary:        groupingconfig.NewSecondaryLoader(c),
		fingerprinting:   groupingconfig.NewFingerprintingLoader(c, cfg.DefaultConfigID),
		defaultID:        cfg.DefaultConfigID,
		backgroundID:     cfg.BackgroundConfigID,
		backgroundRate:   cfg.BackgroundSampleRate,
		allowCustomTitle: cfg.AllowCustomTitle,
		now:              time.Now,
	}
	if cfg.BackgroundConfigID != "" {
		s.background = groupingconfig.NewBackgroundLoader(c, cfg.BackgroundConfigID)
	}
	return s
}

// GroupEvent computes the grouping result of ev for a project. ev is mutated the
// way ingestion would: server fingerprinting may replace its fingerprint and title,
// and the resolved grouping config is attached to it.
func (s *Service) GroupEvent(ctx context.Context, projectID int64, ev *event.Event) (*Result, error) {
	start := time.Now()
	ctx = logger.WithEvent(logger.WithProject(ctx, projectID), ev.EventID)
	log := logger.FromContext(ctx)

	opts, err := s.options.GetProjectOptions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project options: %w", err)
	}

	dict, err := s.primary.ConfigDictForEvent(ctx, ev, opts)
	if err != nil {
		observability.GroupingEventsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	configLabel := dict.ID

	rules, err := s.fingerprinting.RulesForProject(ctx, opts, dict.ID)
	if err != nil {
		observability.GroupingEventsTotal.WithLabelValues(configLabel, "error").Inc()
		return nil, err
	}
	fingerprinting.ApplyServerFingerprinting(ev, rules, s.allowCustomTitle)
	if ev.FingerprintInfo != nil && ev.FingerprintInfo.MatchedRule != nil {
		observability.FingerprintRuleMatches.WithLabelValues(strconv.FormatBool(ev.FingerprintInfo.MatchedRuleIsBuiltin())).Inc()
	}

	variants, err := computeVariants(ev, &dict)
	if err != nil {
		observability.GroupingEventsTotal.WithLabelValues(configLabel, "error").Inc()
		return nil, err
	}
	ev.GroupingConfig = &dict

	result := &Result{
		ProjectID: projectID,
		Event:     ev,
		Config:    dict,
		Variants:  variants,
		Hashes:    grouping.Hashes(variants),
	}

	s.applySecondary(ctx, log, ev, opts, result)
	s.runBackground(ctx, log, ev, opts, result)

	observability.GroupingDuration.WithLabelValues(configLabel).Observe(time.Since(start).Seconds())
	observability.GroupingEventsTotal.WithLabelValues(configLabel, "success").Inc()

	log.Debug("event grouped",
		slog.String("config", dict.ID),
		slog.Int("hashes", len(result.Hashes)),
		slog.Int("secondary_hashes", len(result.SecondaryHashes)),
	)
	return result, nil
}

func computeVariants(ev *event.Event, dict *groupingconfig.GroupingConfig) (map[string]grouping.Variant, error) {
	cfg, err := groupingconfig.LoadGroupingConfig(dict)
	if err != nil {
		return nil, err
	}
	return grouping.GetGroupingVariants(ev, cfg)
}

// applySecondary computes hashes with the project's previous config until its expiry.
// Failures are logged and leave the secondary result empty.
func (s *Service) applySecondary(ctx context.Context, log *slog.Logger, ev *event.Event, opts *store.ProjectOptions, result *Result) {
	if opts.Option(groupingconfig.OptionSecondaryGroupingConfig) == "" || !s.secondaryActive(opts) {
		return
	}

	dict, err := s.secondary.ConfigDict(ctx, opts)
	if err != nil {
		log.Warn("secondary grouping config unavailable", slog.Any("error", err))
		return
	}
	if dict.ID == result.Config.ID {
		return
	}

	variants, err := computeVariants(ev, &dict)
	if err != nil {
		log.Warn("secondary grouping failed", slog.String("config", dict.ID), slog.Any("error", err))
		return
	}
	result.SecondaryConfig = &dict
	result.SecondaryHashes = grouping.Hashes(variants)
}

func (s *Service) secondaryActive(opts *store.ProjectOptions) bool {
	raw := opts.Option(groupingconfig.OptionSecondaryGroupingExpiry)
	if raw == "" {
		return false
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return s.now().Unix() < expiry
}

// runBackground evaluates the background config on a deterministic sample of
// events. Its output only feeds metrics.
func (s *Service) runBackground(ctx context.Context, log *slog.Logger, ev *event.Event, opts *store.ProjectOptions, result *Result) {
	if s.background == nil || !sampled(sampleKey(result.ProjectID, ev), s.backgroundRate) {
		return
	}

	dict, err := s.background.ConfigDict(ctx, opts)
	if err == nil {
		var variants map[string]grouping.Variant
		if variants, err = computeVariants(ev, &dict); err == nil {
			outcome := "mismatch"
			if slices.Equal(grouping.Hashes(variants), result.Hashes) {
				outcome = "match"
			}
			observability.BackgroundComparisons.WithLabelValues(dict.ID, outcome).Inc()
			return
		}
	}

	label := dict.ID
	if label == "" {
		label = "unknown"
	}
	observability.BackgroundComparisons.WithLabelValues(label, "error").Inc()
	log.Warn("background grouping failed", slog.Any("error", err))
}

func sampleKey(projectID int64, ev *event.Event) string {
	if ev.EventID != "" {
		return ev.EventID
	}
	return strconv.FormatInt(projectID, 10) + ":" + ev.Title
}

// sampled maps key onto [0,1) with murmur3 so the same event is always in or out.
func sampled(key string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return float64(murmur3.Sum32([]byte(key)))/float64(math.MaxUint32+1) < rate
}

// ProjectConfig returns the primary configuration dict of a project.
func (s *Service) ProjectConfig(ctx context.Context, projectID int64) (groupingconfig.GroupingConfig, error) {
	opts, err := s.options.GetProjectOptions(ctx, projectID)
	if err != nil {
		return groupingconfig.GroupingConfig{}, fmt.Errorf("failed to load project options: %w", err)
	}
	return s.primary.ConfigDict(ctx, opts)
}

// ProjectOptions returns the grouping options stored for a project.
func (s *Service) ProjectOptions(ctx context.Context, projectID int64) (*store.ProjectOptions, error) {
	return s.options.GetProjectOptions(ctx, projectID)
}

// SetProjectOption validates and persists a grouping option.
func (s *Service) SetProjectOption(ctx context.Context, projectID int64, key, value string) error {
	if err := groupingconfig.ValidateOption(key, value); err != nil {
		return err
	}
	return s.options.SetProjectOption(ctx, projectID, key, value)
}

// DeleteProjectOption removes a grouping option. It reports whether it existed.
func (s *Service) DeleteProjectOption(ctx context.Context, projectID int64, key string) (bool, error) {
	if !slices.Contains(groupingconfig.OptionKeys(), key) {
		return false, fmt.Errorf("%w: unknown option %q", groupingconfig.ErrInvalidOption, key)
	}
	return s.options.DeleteProjectOption(ctx, projectID, key)
}

// Warm resolves and caches every compiled rule set of a project.
func (s *Service) Warm(ctx context.Context, opts *store.ProjectOptions) error {
	dict, err := s.primary.ConfigDict(ctx, opts)
	if err != nil {
		return err
	}
	if _, err := s.fingerprinting.RulesForProject(ctx, opts, dict.ID); err != nil {
		return err
	}

	if opts.Option(groupingconfig.OptionSecondaryGroupingConfig) != "" && s.secondaryActive(opts) {
		if _, err := s.secondary.ConfigDict(ctx, opts); err != nil && !errors.Is(err, grouping.ErrConfigurationNotFound) {
			return err
		}
	}
	return nil
}

// Configurations lists every registered grouping configuration.
func (s *Service) Configurations() []ConfigurationInfo {
	ids := strategy.IDs()
	out := make([]ConfigurationInfo, 0, len(ids))
	for _, id := range ids {
		tmpl, err := strategy.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, ConfigurationInfo{
			ID:                  tmpl.ID,
			EnhancementsBase:    tmpl.EnhancementsBase,
			FingerprintingBases: slices.Clone(tmpl.FingerprintingBases),
			Strategies:          slices.Clone(tmpl.Strategies),
			IsDefault:           tmpl.ID == s.defaultID,
		})
	}
	return out
}

// Registry reports the configurations this service groups with.
func (s *Service) Registry() observability.RegistryInfo {
	return observability.RegistryInfo{
		DefaultConfig:    s.defaultID,
		BackgroundConfig: s.backgroundID,
		Configs:          strategy.IDs(),
	}
}

// Name identifies the service as a readiness checker.
func (s *Service) Name() string { return "grouping" }

// Check compiles the default and background configurations so a process with a
// broken registry never reports ready.
func (s *Service) Check(ctx context.Context) error {
	for _, id := range []string{s.defaultID, s.backgroundID} {
		if id == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		dict, err := groupingconfig.DefaultGroupingConfigDict(id)
		if err != nil {
			return fmt.Errorf("grouping config %s: %w", id, err)
		}
		if _, err := groupingconfig.LoadGroupingConfig(&dict); err != nil {
			return fmt.Errorf("grouping config %s: %w", id, err)
		}
	}
	return nil
}
