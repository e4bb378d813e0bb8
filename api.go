package actioncache

import (
	"context"
	"time"

	cd "github.com/unkn0wn-root/actioncache/codec"
	pr "github.com/unkn0wn-root/actioncache/provider"
	ts "github.com/unkn0wn-root/actioncache/tagstore"
)

// SetCostFunc computes the cost handed to the provider on Set.
// Ristretto uses it for admission/eviction; other providers ignore it.
type SetCostFunc func(key string, raw []byte) int64

// Cache is the high-level, provider-agnostic keyed cache with TTL staleness
// and tag-based invalidation. V is the caller's value type; serialization is
// handled by a pluggable Codec[V].
//
// Staleness is informational: Get returns entries past their TTL with
// stale=true instead of dropping them, so callers may serve-stale-while-
// revalidate or force a refetch. Absence is always a miss, never an error.
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Set creates or overwrites an entry. Overwrite is idempotent.
	// Without WithTTL, Options.DefaultTTL applies (0 => never stale).
	Set(ctx context.Context, key string, value V, opts ...SetOption) error

	// Get returns the value plus a stale flag, or ok=false on miss.
	Get(ctx context.Context, key string) (v V, stale bool, ok bool, err error)

	// GetMany resolves several keys at once, best-effort. Stale entries are
	// included in values; keys that miss (or error) are listed in missing.
	GetMany(ctx context.Context, keys []string) (values map[string]V, missing []string, err error)

	// Has reports presence without considering staleness.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes one entry; no-op if absent.
	Delete(ctx context.Context, key string) error

	// InvalidateTag removes every entry whose tag set contains tag.
	InvalidateTag(ctx context.Context, tag string) error

	// Clear removes all entries in the namespace.
	Clear(ctx context.Context) error
}

// SetOption tunes a single Set call.
type SetOption func(*setConfig)

type setConfig struct {
	ttl    time.Duration
	hasTTL bool
	tags   []string
}

// WithTTL marks the entry stale once d elapses. An explicit WithTTL(0) makes
// the entry stale after any positive delay while keeping it retrievable.
// Negative d is clamped to 0.
func WithTTL(d time.Duration) SetOption {
	return func(sc *setConfig) {
		if d < 0 {
			d = 0
		}
		sc.ttl = d
		sc.hasTTL = true
	}
}

// WithTags attaches tags for group invalidation. Duplicate and empty tags
// are dropped.
func WithTags(tags ...string) SetOption {
	return func(sc *setConfig) {
		for _, t := range tags {
			if t == "" || containsTag(sc.tags, t) {
				continue
			}
			sc.tags = append(sc.tags, t)
		}
	}
}

func containsTag(tags []string, t string) bool {
	for _, x := range tags {
		if x == t {
			return true
		}
	}
	return false
}

// Options tune the behavior of the generic cache.
// Only Namespace, Provider and Codec are required; others have defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "widget"
	Provider  pr.Provider
	Codec     cd.Codec[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// DefaultTTL is the staleness horizon for Set calls without WithTTL.
	// 0 => such entries never go stale until invalidated.
	DefaultTTL time.Duration

	// EvictAfterStale asks the provider to hard-expire entries this long
	// after their staleAt. 0 => stale entries are kept until invalidated,
	// which Get requires in order to serve them with stale=true.
	EvictAfterStale time.Duration

	CleanupInterval time.Duration // local tagstore janitor; 0 => 1h
	TagRetention    time.Duration // local tagstore retention; 0 => 30d
	Disabled        bool          // default false (enabled)
	ComputeSetCost  SetCostFunc   // default 1
	TagStore        ts.Store      // nil => tagstore.NewLocal (in-process)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
