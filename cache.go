package actioncache

import (
	"context"
	"fmt"
	"time"

	cd "github.com/unkn0wn-root/actioncache/codec"
	"github.com/unkn0wn-root/actioncache/internal/wire"
	pr "github.com/unkn0wn-root/actioncache/provider"
	"github.com/unkn0wn-root/actioncache/tagstore"
)

const (
	defaultTagRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

type cache[V any] struct {
	ns       string
	provider pr.Provider
	codec    cd.Codec[V]
	log      Logger
	hooks    Hooks
	enabled  bool

	defaultTTL      time.Duration
	evictAfterStale time.Duration
	sweepInterval   time.Duration
	tagRetention    time.Duration
	computeSetCost  SetCostFunc

	tags tagstore.Store
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("actioncache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("actioncache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("actioncache: namespace is required")
	}

	c := &cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.defaultTTL = opts.DefaultTTL
	c.evictAfterStale = opts.EvictAfterStale
	c.sweepInterval = coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	c.tagRetention = coalesce[time.Duration](opts.TagRetention, defaultTagRetention)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(_ string, _ []byte) int64 { return 1 }
	}

	if opts.TagStore != nil {
		c.tags = opts.TagStore
	} else {
		// default to in-process tag generations with periodic cleanup
		c.tags = tagstore.NewLocal(c.sweepInterval, c.tagRetention)
	}

	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	// Close tag store first (best effort)
	if c.tags != nil {
		_ = c.tags.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts ...SetOption) error {
	if !c.enabled {
		return nil
	}
	if key == "" {
		return fmt.Errorf("actioncache: empty key")
	}
	var sc setConfig
	for _, o := range opts {
		o(&sc)
	}

	ttl, hasTTL := sc.ttl, sc.hasTTL
	if !hasTTL && c.defaultTTL > 0 {
		ttl, hasTTL = c.defaultTTL, true
	}

	now := time.Now()
	var staleAt int64
	if hasTTL {
		staleAt = now.Add(ttl).UnixNano()
	}

	// snapshot generations for the namespace epoch and each tag; they get
	// sealed into the envelope and re-validated on every read
	tagKeys := c.tagKeys(sc.tags)
	gens, err := c.tags.SnapshotMany(ctx, tagKeys)
	if err != nil {
		c.hooks.TagSnapshotError(len(tagKeys), err)
		return err
	}

	env := wire.Envelope{
		NsGen:     gens[c.nsKey()],
		CreatedAt: now.UnixNano(),
		StaleAt:   staleAt,
	}
	for _, t := range sc.tags {
		env.Tags = append(env.Tags, wire.TagRef{Name: t, Gen: gens[c.tagKey(t)]})
	}

	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	env.Payload = payload
	raw := wire.Encode(env)

	ek := c.entryKey(key)
	var provTTL time.Duration
	if hasTTL && c.evictAfterStale > 0 {
		provTTL = ttl + c.evictAfterStale
	}
	ok, err := c.provider.Set(ctx, ek, raw, c.computeSetCost(ek, raw), provTTL)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(ek)
		c.log.Debug("Set rejected by provider (pressure)", Fields{"key": key})
		return nil
	}

	if err := c.tags.Track(ctx, ek, tagKeys); err != nil {
		// eager deletion on invalidate loses this key; lazy gen validation
		// still invalidates it on read
		c.log.Warn("tag tracking failed", Fields{"key": key, "err": err})
	}
	return nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, bool, error) {
	var zero V
	env, ek, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return zero, false, false, err
	}
	v, err := c.codec.Decode(env.Payload)
	if err != nil {
		_ = c.provider.Del(ctx, ek) // self-heal
		c.hooks.SelfHealEntry(ek, "value_decode")
		return zero, false, false, nil
	}
	stale := env.StaleAt != 0 && time.Now().UnixNano() > env.StaleAt
	if stale {
		c.hooks.StaleServed(ek)
	}
	return v, stale, true, nil
}

func (c *cache[V]) GetMany(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	var missing []string
	if !c.enabled {
		missing = append(missing, keys...)
		return out, missing, nil
	}
	for _, k := range keys {
		v, _, ok, err := c.Get(ctx, k)
		if err != nil || !ok {
			missing = append(missing, k)
			continue
		}
		out[k] = v
	}
	return out, missing, nil
}

func (c *cache[V]) Has(ctx context.Context, key string) (bool, error) {
	_, _, ok, err := c.load(ctx, key)
	return ok, err
}

// load fetches and validates the raw envelope without decoding the payload.
func (c *cache[V]) load(ctx context.Context, key string) (wire.Envelope, string, bool, error) {
	if !c.enabled {
		return wire.Envelope{}, "", false, nil
	}
	ek := c.entryKey(key)
	raw, ok, err := c.provider.Get(ctx, ek)
	if err != nil || !ok {
		return wire.Envelope{}, ek, false, err
	}
	env, err := wire.Decode(raw)
	if err != nil {
		_ = c.provider.Del(ctx, ek) // self-heal corrupt
		c.hooks.SelfHealEntry(ek, "corrupt")
		return wire.Envelope{}, ek, false, nil
	}
	valid, err := c.gensCurrent(ctx, env)
	if err != nil {
		// snapshot failed: do not serve possibly-invalidated data, do not
		// destroy the entry either - miss until the store recovers
		return wire.Envelope{}, ek, false, nil
	}
	if !valid {
		_ = c.provider.Del(ctx, ek)
		c.hooks.SelfHealEntry(ek, "gen_mismatch")
		return wire.Envelope{}, ek, false, nil
	}
	return env, ek, true, nil
}

// gensCurrent reports whether the generations sealed into the envelope still
// match the tag store. A lagging generation means the entry was invalidated.
func (c *cache[V]) gensCurrent(ctx context.Context, env wire.Envelope) (bool, error) {
	tagKeys := make([]string, 0, len(env.Tags)+1)
	tagKeys = append(tagKeys, c.nsKey())
	for _, t := range env.Tags {
		tagKeys = append(tagKeys, c.tagKey(t.Name))
	}
	gens, err := c.tags.SnapshotMany(ctx, tagKeys)
	if err != nil {
		c.hooks.TagSnapshotError(len(tagKeys), err)
		return false, err
	}
	if env.NsGen != gens[c.nsKey()] {
		return false, nil
	}
	for _, t := range env.Tags {
		if t.Gen != gens[c.tagKey(t.Name)] {
			return false, nil
		}
	}
	return true, nil
}

func (c *cache[V]) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.provider.Del(ctx, c.entryKey(key))
}

func (c *cache[V]) InvalidateTag(ctx context.Context, tag string) error {
	if !c.enabled || tag == "" {
		return nil
	}
	return c.invalidate(ctx, tag, c.tagKey(tag))
}

func (c *cache[V]) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.invalidate(ctx, c.ns, c.nsKey())
}

// invalidate bumps the generation behind tk (lazy invalidation for every
// carrier, including those another replica wrote) and best-effort deletes
// the tracked entries. An error is returned only when both legs fail, since
// either one alone keeps reads correct.
func (c *cache[V]) invalidate(ctx context.Context, label, tk string) error {
	newGen, bumpErr := c.tags.Bump(ctx, tk)
	if bumpErr != nil {
		c.hooks.TagBumpError(tk, bumpErr)
	}

	keys, keysErr := c.tags.Keys(ctx, tk)
	var delErr error
	deleted := 0
	for _, ek := range keys {
		if err := c.provider.Del(ctx, ek); err != nil {
			delErr = err
			continue
		}
		deleted++
	}
	if delErr == nil {
		delErr = keysErr
	}
	_ = c.tags.Forget(ctx, tk)

	if bumpErr != nil && delErr != nil {
		c.hooks.InvalidateOutage(label, bumpErr, delErr)
		return &InvalidateError{Tag: label, BumpErr: bumpErr, DelErr: delErr}
	}
	c.log.Debug("invalidated (bumped gen + cleared tracked entries)",
		Fields{"tag": label, "newGen": newGen, "deleted": deleted})
	return nil
}

func (c *cache[V]) entryKey(userKey string) string {
	// isolate by namespace
	return "entry:" + c.ns + ":" + userKey
}

func (c *cache[V]) tagKey(tag string) string { return "tag:" + c.ns + ":" + tag }

// nsKey is the namespace epoch; bumping it is a whole-namespace clear.
func (c *cache[V]) nsKey() string { return "ns:" + c.ns }

func (c *cache[V]) tagKeys(tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	out = append(out, c.nsKey())
	for _, t := range tags {
		out = append(out, c.tagKey(t))
	}
	return out
}
