// Package asynchook decouples hook sinks from the cache hot path: events are
// queued to a bounded channel and delivered by a worker pool. When the queue
// is full, events are dropped rather than blocking a cache operation.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := actioncache.New[Widget](actioncache.Options[Widget]{
//	    Namespace: "dashboard",
//	    Provider:  provider,
//	    Codec:     codec.JSON[Widget]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/actioncache"
)

type Hooks struct {
	inner actioncache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ actioncache.Hooks = (*Hooks)(nil)

func New(inner actioncache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHealEntry(k, r string)        { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) StaleServed(k string)             { h.try(func() { h.inner.StaleServed(k) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) TagBumpError(k string, err error) { h.try(func() { h.inner.TagBumpError(k, err) }) }
func (h *Hooks) TagSnapshotError(n int, err error) {
	h.try(func() { h.inner.TagSnapshotError(n, err) })
}
func (h *Hooks) InvalidateOutage(tag string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(tag, be, de) })
}
