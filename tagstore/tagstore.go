// Package tagstore holds the generation counters and key membership behind
// tag invalidation. A generation bump lazily invalidates every cache entry
// that sealed the old generation; membership lets the cache also delete the
// entries it knows about eagerly.
package tagstore

import (
	"context"
	"time"
)

// Store abstracts where tag generations and membership live.
// Use Local (default) for in-process state, or Redis to share invalidation
// across replicas. Implementations must be safe for concurrent use.
type Store interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, tagKey string) (uint64, error)
	// SnapshotMany returns generations for many tag keys; missing => 0.
	SnapshotMany(ctx context.Context, tagKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, tagKey string) (uint64, error)

	// Track records that storageKey carries each of tagKeys.
	Track(ctx context.Context, storageKey string, tagKeys []string) error
	// Keys returns the storage keys tracked under tagKey.
	Keys(ctx context.Context, tagKey string) ([]string, error)
	// Forget drops the membership set for tagKey (generations are kept).
	Forget(ctx context.Context, tagKey string) error

	// Cleanup prunes long-inactive metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
