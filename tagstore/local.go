package tagstore

import (
	"context"
	"sync"
	"time"
)

type localTag struct {
	Gen       uint64
	Members   map[string]struct{}
	UpdatedAt time.Time
}

// Local keeps tag generations and membership in-process (default).
// Optional cleanup loop to prune long-inactive tags.
type Local struct {
	mu     sync.RWMutex
	tags   map[string]*localTag
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	retention time.Duration
}

var _ Store = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{
		tags:      make(map[string]*localTag),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	t, ok := s.tags[k]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return t.Gen, nil
}

// SnapshotMany acquires the read lock once and reads all requested keys.
func (s *Local) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		if t, ok := s.tags[k]; ok {
			out[k] = t.Gen
		} else {
			out[k] = 0
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	t := s.touch(k, now)
	t.Gen++
	gen := t.Gen
	s.mu.Unlock()
	return gen, nil
}

func (s *Local) Track(_ context.Context, storageKey string, tagKeys []string) error {
	now := time.Now()
	s.mu.Lock()
	for _, k := range tagKeys {
		t := s.touch(k, now)
		if t.Members == nil {
			t.Members = make(map[string]struct{})
		}
		t.Members[storageKey] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

func (s *Local) Keys(_ context.Context, tagKey string) ([]string, error) {
	s.mu.RLock()
	t, ok := s.tags[tagKey]
	var out []string
	if ok {
		out = make([]string, 0, len(t.Members))
		for m := range t.Members {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Forget(_ context.Context, tagKey string) error {
	s.mu.Lock()
	if t, ok := s.tags[tagKey]; ok {
		t.Members = nil
		t.UpdatedAt = time.Now()
	}
	s.mu.Unlock()
	return nil
}

// touch must be called with the write lock held.
func (s *Local) touch(k string, now time.Time) *localTag {
	t, ok := s.tags[k]
	if !ok {
		t = &localTag{}
		s.tags[k] = t
	}
	t.UpdatedAt = now
	return t
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, t := range s.tags {
		if !t.UpdatedAt.IsZero() && t.UpdatedAt.Before(cutoff) {
			delete(s.tags, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	if s.stopCh != nil {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop() // stop ticker before waiting
		}
		s.wg.Wait()
	}
	return nil
}
