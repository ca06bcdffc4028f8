// Package cache defines the ephemeral store used for execution snapshots
// and the item sets of in-flight executions and batches: data that must survive a
// process restart long enough for the recovery sweep to pick it up, but
// that is never the system of record (internal/app/storage is).
package cache

import (
	"context"
	"time"
)

// Cache is the ephemeral store abstraction. The development
// implementation (memory.Cache) is an in-process map with TTL; the
// production implementation (redis.Cache) is backed by Redis. Both share
// this one interface so callers never branch on which is in use.
type Cache interface {
	// Put stores value under key, expiring it after ttl. ttl <= 0 means
	// the implementation's default TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the stored value and true, or nil and false if the key
	// is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every non-expired key matching prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
