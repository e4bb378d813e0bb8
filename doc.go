// Package actioncache implements a provider-agnostic keyed cache with
// TTL-based staleness and tag-based bulk invalidation. Entries past their
// time-to-live are served with a stale flag rather than dropped, so callers
// can serve-stale-while-revalidate. A single mutation invalidates a whole
// group of related entries through a shared tag without enumerating keys.
//
// Invalidation is generation-based: every tag (and one reserved namespace
// epoch) has a monotonic generation in a tagstore.Store. Set seals the
// observed generations into the stored envelope; Get re-validates them and
// deletes entries whose recorded generation lags the current one. Bumping a
// generation therefore invalidates all carriers lazily, which stays correct
// even when the byte store is shared across replicas and the tracked-key
// deletion is incomplete.
//
// Components:
//   - provider.Provider: byte store with TTL (memory, Ristretto, BigCache, Redis).
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//   - tagstore.Store: tag generations + key membership. Local (in-process)
//     by default, optional Redis implementation for multi-replica setups.
//
// Keys:
//
//	entry:<ns>:<key>  - cache entries
//	tag:<ns>:<tag>    - tag generations / membership
//	ns:<ns>           - namespace epoch (Clear)
//
// The sibling package action provides the asynchronous action state machine
// that typically drives invalidation: a mutating action completes, the
// caller bumps a tag, and subsequently rendered views observe fresh data.
package actioncache
