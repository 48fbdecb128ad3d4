package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/cache"
	"github.com/rafaeljc/grouper/internal/testsupport"
)

func TestMemoryCache_GetSet(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	c, err := cache.NewMemoryCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	// Act
	require.NoError(t, c.Set(ctx, "enhancements:1", []byte("blob")))
	value, found, err := c.Get(ctx, "enhancements:1")

	// Assert
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("blob"), value)

	c.Del("enhancements:1")
	_, found, err = c.Get(ctx, "enhancements:1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_Metrics(t *testing.T) {
	// Not parallel: asserts on global counters.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := cache.NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	t.Run("records misses", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "grouper_cache_l1_misses_total", nil, 1, func() {
			_, found, _ := c.Get(ctx, "non-existent-key")
			assert.False(t, found)
		})
	})

	t.Run("records hits", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k", []byte("v")))
		testsupport.AssertMetricDelta(t, "grouper_cache_l1_hits_total", nil, 1, func() {
			_, found, _ := c.Get(ctx, "k")
			assert.True(t, found)
		})
	})

	go c.RunMetricsCollector(ctx, 10*time.Millisecond)

	t.Run("reflects items usage", func(t *testing.T) {
		for i := range 5 {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("usage-%d", i), []byte("v")))
		}

		require.Eventually(t, func() bool {
			return testsupport.GetMetricValue(t, "grouper_cache_l1_items_count", nil) >= 1
		}, 2*time.Second, 50*time.Millisecond, "usage metric failed to update")
	})

	t.Run("reflects evictions", func(t *testing.T) {
		// Capacity 10, write 100 to force evictions
		for i := range 100 {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("overflow-%d", i), []byte("v")))
		}

		require.Eventually(t, func() bool {
			return testsupport.GetMetricValue(t, "grouper_cache_l1_evictions_total", nil) > 0
		}, 2*time.Second, 50*time.Millisecond, "evictions metric failed to increment")
	})
}
