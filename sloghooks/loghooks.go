// Package sloghooks is an actioncache.Hooks implementation that logs events
// through log/slog, with sampling for the high-frequency ones and key
// redaction so raw cache keys never reach logs.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/actioncache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	StaleServedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	staleCtr    atomic.Uint64
}

var _ actioncache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("actioncache.self_heal_entry",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StaleServed(storageKey string) {
	if h.l == nil || !sample(h.opts.StaleServedEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("actioncache.stale_served",
		"key", h.redact(storageKey))
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("actioncache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) TagSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("actioncache.tag_snapshot_error",
		"count", count,
		"err", err)
}

func (h *Hooks) TagBumpError(tagKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("actioncache.tag_bump_error",
		"key", h.redact(tagKey),
		"err", err)
}

func (h *Hooks) InvalidateOutage(tag string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("actioncache.invalidate_outage",
		"tag", h.redact(tag),
		"bump_err", bumpErr,
		"del_err", delErr)
}
