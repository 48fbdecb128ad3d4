package cache

import (
	"context"
	"log/slog"

	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/validation"
)

// Tiered is a read-through cache: L1 first, then L2, filling L1 on an L2 hit.
// Writes go to both tiers.
type Tiered struct {
	l1 *MemoryCache
	l2 Cache
}

// NewTiered combines the two tiers. l2 may be nil, in which case only L1 is used.
func NewTiered(l1 *MemoryCache, l2 Cache) *Tiered {
	validation.AssertNotNil(l1, "l1 cache")
	return &Tiered{l1: l1, l2: l2}
}

// Get returns the L1 value if present, otherwise the L2 value.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok, _ := t.l1.Get(ctx, key); ok {
		return value, true, nil
	}
	if t.l2 == nil {
		return nil, false, nil
	}

	value, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	_ = t.l1.Set(ctx, key, value)
	return value, true, nil
}

// Set writes L1 unconditionally and then L2. An L2 failure is returned but
// leaves the L1 entry in place.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) error {
	_ = t.l1.Set(ctx, key, value)
	if t.l2 == nil {
		return nil
	}

	if err := t.l2.Set(ctx, key, value); err != nil {
		logger.FromContext(ctx).Warn("l2 cache write failed", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}
