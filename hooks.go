package actioncache

// Hooks are lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking - the cache calls them on
// hot paths. Wrap with hooks/async if the sink may block.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHealEntry(storageKey, reason string)

	// An entry past its staleAt was served (with stale=true).
	StaleServed(storageKey string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// Tagstore errors (snapshot or bump).
	// count is the number of tag keys involved in the snapshot.
	TagSnapshotError(count int, err error)
	TagBumpError(tagKey string, err error)

	// Both the generation bump and every tracked-key delete failed during
	// InvalidateTag or Clear (likely backend outage).
	InvalidateOutage(tag string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHealEntry(string, string)          {}
func (NopHooks) StaleServed(string)                    {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) TagSnapshotError(int, error)           {}
func (NopHooks) TagBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
