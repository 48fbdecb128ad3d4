package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/observability"
)

// MemoryCache acts as the L1 caching layer using a contention-free
// S3-FIFO cache provided by the 'otter' library.
type MemoryCache struct {
	store otter.Cache[string, []byte]
}

// NewMemoryCache initializes the in-memory cache with strict limits.
// capacity: Max number of items (hard cap to prevent OOM).
// ttl: Time-To-Live for items (bounds staleness against L2).
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	store, err := otter.MustBuilder[string, []byte](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &MemoryCache{store: store}, nil
}

// Get retrieves a value from memory. It never fails.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := c.store.Get(key)
	if ok {
		observability.CacheL1Hits.Inc()
	} else {
		observability.CacheL1Misses.Inc()
	}
	return value, ok, nil
}

// Set adds or updates a value in memory. A write rejected by the
// admission policy is not an error; it is counted by the metrics collector.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.store.Set(key, value)
	return nil
}

// Del removes a value from memory.
func (c *MemoryCache) Del(key string) {
	c.store.Delete(key)
}

// Len returns the current number of entries.
func (c *MemoryCache) Len() int {
	return c.store.Size()
}

// Close shuts down the cache and its background cleanup goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}

// RunMetricsCollector periodically exports otter statistics until ctx is cancelled.
// Counters are exported as deltas since otter only exposes cumulative totals.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	log.Debug("l1 metrics collector started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted, lastRejected int64
	for {
		select {
		case <-ctx.Done():
			log.Debug("l1 metrics collector stopped")
			return
		case <-ticker.C:
			stats := c.store.Stats()

			if evicted := stats.EvictedCount(); evicted > lastEvicted {
				observability.CacheL1Evictions.Add(float64(evicted - lastEvicted))
				lastEvicted = evicted
			}
			if rejected := stats.RejectedSets(); rejected > lastRejected {
				observability.CacheL1Dropped.Add(float64(rejected - lastRejected))
				lastRejected = rejected
			}
			observability.CacheL1Usage.Set(float64(c.store.Size()))
		}
	}
}
