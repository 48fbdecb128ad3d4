package grouper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/testsupport"
)

const (
	defaultID = "newstyle:2023-01-11"
	legacyID  = "legacy:2019-03-12"
	projectID = int64(42)
)

func newTestService(t *testing.T, cfg config.GroupingConfig) (*Service, *store.MemoryStore) {
	t.Helper()
	if cfg.DefaultConfigID == "" {
		cfg.DefaultConfigID = defaultID
	}
	repo := store.NewMemoryStore()
	return NewService(repo, nil, &cfg), repo
}

func messageEvent(msg string) *event.Event {
	return &event.Event{
		EventID:  "9f1c2b7e5a3d4c8b9e0f1a2b3c4d5e6f",
		Platform: "python",
		Message:  msg,
	}
}

// =============================================================================
// GroupEvent
// =============================================================================

func TestService_GroupEvent(t *testing.T) {
	t.Parallel()

	checksum := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name       string
		options    map[string]string
		event      func() *event.Event
		wantConfig string
		check      func(t *testing.T, r *Result)
	}{
		{
			name:       "Should use the default config for a project without options",
			event:      func() *event.Event { return messageEvent("connection refused") },
			wantConfig: defaultID,
			check: func(t *testing.T, r *Result) {
				assert.NotEmpty(t, r.Hashes)
				assert.Nil(t, r.SecondaryConfig)
			},
		},
		{
			name:       "Should honor the project grouping config option",
			options:    map[string]string{groupingconfig.OptionGroupingConfig: legacyID},
			event:      func() *event.Event { return messageEvent("connection refused") },
			wantConfig: legacyID,
		},
		{
			name:       "Should return the checksum as the only hash",
			event:      func() *event.Event { return &event.Event{Checksum: checksum, Message: "ignored"} },
			wantConfig: defaultID,
			check: func(t *testing.T, r *Result) {
				assert.Equal(t, []string{checksum}, r.Hashes)
			},
		},
		{
			name: "Should apply project fingerprinting rules before grouping",
			options: map[string]string{
				groupingconfig.OptionFingerprintingRules: `message:"*refused*" -> network-error title="Network is down"`,
			},
			event:      func() *event.Event { return messageEvent("connection refused") },
			wantConfig: defaultID,
			check: func(t *testing.T, r *Result) {
				assert.Equal(t, []string{"network-error"}, r.Event.Fingerprint)
				assert.Equal(t, "Network is down", r.Event.Title)
				assert.Equal(t, []string{grouping.HashFromValues([]string{"network-error"})}, r.Hashes)
				require.NotNil(t, r.Event.FingerprintInfo)
				assert.False(t, r.Event.FingerprintInfo.MatchedRuleIsBuiltin())
			},
		},
		{
			name: "Should ignore invalid project fingerprinting rules",
			options: map[string]string{
				groupingconfig.OptionFingerprintingRules: "this is not a rule",
			},
			event:      func() *event.Event { return messageEvent("connection refused") },
			wantConfig: defaultID,
			check: func(t *testing.T, r *Result) {
				assert.Empty(t, r.Event.Fingerprint)
				assert.NotEmpty(t, r.Hashes)
			},
		},
		{
			name: "Should reuse the config persisted with the event",
			event: func() *event.Event {
				ev := messageEvent("connection refused")
				ev.GroupingConfig = &event.GroupingConfig{ID: legacyID}
				return ev
			},
			wantConfig: legacyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			svc, repo := newTestService(t, config.GroupingConfig{AllowCustomTitle: true})
			ctx := context.Background()
			for k, v := range tt.options {
				require.NoError(t, repo.SetProjectOption(ctx, projectID, k, v))
			}

			// Act
			result, err := svc.GroupEvent(ctx, projectID, tt.event())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, result.Config.ID)
			require.NotNil(t, result.Event.GroupingConfig)
			assert.Equal(t, tt.wantConfig, result.Event.GroupingConfig.ID)
			assert.NotEmpty(t, result.Variants)
			if tt.check != nil {
				tt.check(t, result)
			}
		})
	}
}

func TestService_GroupEvent_Deterministic(t *testing.T) {
	t.Parallel()

	// Arrange
	svc, _ := newTestService(t, config.GroupingConfig{})
	ctx := context.Background()

	// Act
	first, err := svc.GroupEvent(ctx, projectID, messageEvent("disk full"))
	require.NoError(t, err)
	second, err := svc.GroupEvent(ctx, projectID, messageEvent("disk full"))
	require.NoError(t, err)
	other, err := svc.GroupEvent(ctx, projectID, messageEvent("disk empty"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first.Hashes, second.Hashes)
	assert.NotEqual(t, first.Hashes, other.Hashes)
}

func TestService_GroupEvent_CustomTitleDisabled(t *testing.T) {
	t.Parallel()

	// Arrange
	svc, repo := newTestService(t, config.GroupingConfig{AllowCustomTitle: false})
	ctx := context.Background()
	require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionFingerprintingRules,
		`message:"*refused*" -> network-error title="Network is down"`))

	// Act
	result, err := svc.GroupEvent(ctx, projectID, messageEvent("connection refused"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"network-error"}, result.Event.Fingerprint)
	assert.Empty(t, result.Event.Title)
}

func TestService_GroupEvent_Errors(t *testing.T) {
	t.Parallel()

	t.Run("Should reject an unknown project config", func(t *testing.T) {
		t.Parallel()

		svc, repo := newTestService(t, config.GroupingConfig{})
		ctx := context.Background()
		require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionGroupingConfig, "nope:2000-01-01"))

		_, err := svc.GroupEvent(ctx, projectID, messageEvent("x"))

		assert.ErrorIs(t, err, grouping.ErrConfigurationNotFound)
	})

	t.Run("Should reject an invalid project id", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, config.GroupingConfig{})

		_, err := svc.GroupEvent(context.Background(), 0, messageEvent("x"))

		assert.ErrorIs(t, err, store.ErrInvalidProjectID)
	})
}

// =============================================================================
// Secondary and background grouping
// =============================================================================

func TestService_GroupEvent_Secondary(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		secondaryID   string
		expiry        time.Time
		wantSecondary bool
	}{
		{"Should compute secondary hashes before expiry", legacyID, now.Add(time.Hour), true},
		{"Should skip secondary hashes after expiry", legacyID, now.Add(-time.Hour), false},
		{"Should skip a secondary config equal to the primary", defaultID, now.Add(time.Hour), false},
		{"Should skip an unknown secondary config", "nope:2000-01-01", now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			svc, repo := newTestService(t, config.GroupingConfig{})
			svc.now = func() time.Time { return now }
			ctx := context.Background()
			require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionSecondaryGroupingConfig, tt.secondaryID))
			require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionSecondaryGroupingExpiry,
				strconv.FormatInt(tt.expiry.Unix(), 10)))

			// Act
			result, err := svc.GroupEvent(ctx, projectID, messageEvent("timeout"))

			// Assert
			require.NoError(t, err)
			if !tt.wantSecondary {
				assert.Nil(t, result.SecondaryConfig)
				assert.Empty(t, result.SecondaryHashes)
				return
			}
			require.NotNil(t, result.SecondaryConfig)
			assert.Equal(t, tt.secondaryID, result.SecondaryConfig.ID)
			assert.NotEmpty(t, result.SecondaryHashes)
			assert.Equal(t, defaultID, result.Event.GroupingConfig.ID, "primary config stays on the event")
		})
	}
}

func TestService_GroupEvent_ScopesLogs(t *testing.T) {
	t.Parallel()

	// Arrange
	svc, _ := newTestService(t, config.GroupingConfig{})
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := logger.WithContext(context.Background(), log)

	// Act
	_, err := svc.GroupEvent(ctx, projectID, messageEvent("scoped"))

	// Assert
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "project_id=42")
	assert.Contains(t, buf.String(), "event_id=9f1c2b7e5a3d4c8b9e0f1a2b3c4d5e6f")
}

// Not parallel: asserts on the global metrics registry.
func TestService_GroupEvent_Background(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t, config.GroupingConfig{
		BackgroundConfigID:   legacyID,
		BackgroundSampleRate: 1,
	})
	before := testsupport.BackgroundComparisons(t, legacyID)

	// Act
	result, err := svc.GroupEvent(context.Background(), projectID, messageEvent("background"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1.0, testsupport.BackgroundComparisons(t, legacyID)-before)
	assert.Equal(t, defaultID, result.Config.ID, "background config never replaces the primary")
}

func TestService_GroupEvent_Metrics(t *testing.T) {
	svc, _ := newTestService(t, config.GroupingConfig{})

	before := testsupport.GroupingEvents(t, defaultID, "success")

	_, err := svc.GroupEvent(context.Background(), projectID, messageEvent("metrics"))

	require.NoError(t, err)
	assert.Equal(t, 1.0, testsupport.GroupingEvents(t, defaultID, "success")-before)
	testsupport.AssertHistogramRecorded(t, testsupport.GroupingDurationMetric, map[string]string{"config": defaultID})
}

func TestSampled(t *testing.T) {
	t.Parallel()

	t.Run("Should honor the rate bounds", func(t *testing.T) {
		t.Parallel()
		assert.False(t, sampled("any", 0))
		assert.False(t, sampled("any", -1))
		assert.True(t, sampled("any", 1))
	})

	t.Run("Should be stable for a key", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, sampled("event-a", 0.5), sampled("event-a", 0.5))
	})

	t.Run("Should approximate the rate", func(t *testing.T) {
		t.Parallel()

		hits := 0
		for i := range 10000 {
			if sampled(strconv.Itoa(i), 0.25) {
				hits++
			}
		}
		assert.InDelta(t, 2500, hits, 300)
	})
}

// =============================================================================
// Options and configurations
// =============================================================================

func TestService_SetProjectOption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{"Should store a valid grouping config", groupingconfig.OptionGroupingConfig, legacyID, nil},
		{"Should store valid fingerprinting rules", groupingconfig.OptionFingerprintingRules, "type:Timeout -> timeouts", nil},
		{"Should reject an unknown config", groupingconfig.OptionGroupingConfig, "nope", groupingconfig.ErrInvalidOption},
		{"Should reject broken enhancements", groupingconfig.OptionGroupingEnhancements, "garbage", groupingconfig.ErrInvalidOption},
		{"Should reject an unknown key", "sentry:whatever", "x", groupingconfig.ErrInvalidOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			svc, repo := newTestService(t, config.GroupingConfig{})
			ctx := context.Background()

			// Act
			err := svc.SetProjectOption(ctx, projectID, tt.key, tt.value)

			// Assert
			opts, getErr := repo.GetProjectOptions(ctx, projectID)
			require.NoError(t, getErr)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, opts.Option(tt.key))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, opts.Option(tt.key))
		})
	}
}

func TestService_DeleteProjectOption(t *testing.T) {
	t.Parallel()

	// Arrange
	svc, _ := newTestService(t, config.GroupingConfig{})
	ctx := context.Background()
	require.NoError(t, svc.SetProjectOption(ctx, projectID, groupingconfig.OptionGroupingConfig, legacyID))

	// Act
	deleted, err := svc.DeleteProjectOption(ctx, projectID, groupingconfig.OptionGroupingConfig)
	require.NoError(t, err)
	again, err := svc.DeleteProjectOption(ctx, projectID, groupingconfig.OptionGroupingConfig)
	require.NoError(t, err)
	_, unknownErr := svc.DeleteProjectOption(ctx, projectID, "sentry:whatever")

	// Assert
	assert.True(t, deleted)
	assert.False(t, again)
	assert.ErrorIs(t, unknownErr, groupingconfig.ErrInvalidOption)

	cfg, err := svc.ProjectConfig(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, defaultID, cfg.ID)
}

func TestService_Configurations(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, config.GroupingConfig{})

	configs := svc.Configurations()

	require.NotEmpty(t, configs)
	defaults := 0
	ids := make([]string, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.ID)
		if c.IsDefault {
			defaults++
			assert.Equal(t, defaultID, c.ID)
		}
	}
	assert.Equal(t, 1, defaults)
	assert.Contains(t, ids, legacyID)
}

func TestService_Warm(t *testing.T) {
	t.Parallel()

	// Arrange
	repo := store.NewMemoryStore()
	c := newMapCache()
	svc := NewService(repo, c, &config.GroupingConfig{DefaultConfigID: defaultID})
	ctx := context.Background()
	require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionGroupingEnhancements, "function:panic* -app"))
	require.NoError(t, repo.SetProjectOption(ctx, projectID, groupingconfig.OptionFingerprintingRules, "type:Timeout -> timeouts"))
	opts, err := repo.GetProjectOptions(ctx, projectID)
	require.NoError(t, err)

	// Act
	err = svc.Warm(ctx, opts)

	// Assert
	require.NoError(t, err)
	assert.Len(t, c.data, 2, "enhancements and fingerprinting rules are cached")
}

type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	c.data[key] = value
	return nil
}

// =============================================================================
// Readiness
// =============================================================================

func TestService_Registry(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, config.GroupingConfig{BackgroundConfigID: legacyID})

	info := svc.Registry()

	assert.Equal(t, defaultID, info.DefaultConfig)
	assert.Equal(t, legacyID, info.BackgroundConfig)
	assert.Contains(t, info.Configs, defaultID)
	assert.Contains(t, info.Configs, legacyID)
}

func TestService_Check(t *testing.T) {
	t.Parallel()

	t.Run("Should pass with registered configs", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, config.GroupingConfig{BackgroundConfigID: legacyID})

		assert.Equal(t, "grouping", svc.Name())
		assert.NoError(t, svc.Check(context.Background()))
	})

	t.Run("Should fail on an unknown default config", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, config.GroupingConfig{DefaultConfigID: "nope:2000-01-01"})

		err := svc.Check(context.Background())

		assert.ErrorIs(t, err, grouping.ErrConfigurationNotFound)
	})

	t.Run("Should stop on a cancelled context", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, config.GroupingConfig{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, svc.Check(ctx), context.Canceled)
	})
}
