// Package cache provides the caching layer for compiled grouping rules.
// A process-local otter cache (L1) sits in front of a shared Redis cache (L2);
// both speak opaque byte values so callers own serialization.
package cache

import "context"

// Cache is a byte-oriented key/value store.
// A miss is reported as found=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}
