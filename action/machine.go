package action

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/actioncache"
)

// DefaultTimeout bounds an invocation when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Action produces the result of one asynchronous operation, or fails.
// The context is the one handed to Start; cooperative cancellation after a
// timeout only happens if the action observes it.
type Action[R any] func(ctx context.Context) (R, error)

// Options tune a Machine. The zero value gives a 30s timeout, no retries,
// no auto-reset.
type Options struct {
	// Timeout bounds each invocation. 0 => DefaultTimeout; negative => none.
	Timeout time.Duration

	// SuccessFor / ErrorFor delay the auto-reset to idle after the
	// respective outcome when AutoReset is set. 0 = stay in that phase.
	SuccessFor time.Duration
	ErrorFor   time.Duration
	AutoReset  bool

	// MaxRetries bounds Retry calls: at most MaxRetries+1 total
	// invocations per sequence. Default 0 (no retries).
	MaxRetries int

	// PauseExtendsTimeout stops the timeout clock while paused and re-arms
	// the remaining budget on resume. Default false: pausing freezes only
	// the visible phase, the clock keeps running.
	PauseExtendsTimeout bool

	Logger actioncache.Logger // if nil, logging is disabled
	Hooks  Hooks              // if nil, NopHooks is used
}

type subscriber struct {
	id uint64
	fn func(cur, prev Phase)
}

// Machine drives one action instance through its lifecycle. Each UI trigger
// owns its own Machine; construct instances explicitly and inject them
// rather than sharing process-wide state. All methods are safe for
// concurrent use; transitions are serialized by an internal lock, so no two
// transitions for the same instance ever run concurrently.
type Machine[R any] struct {
	mu    sync.Mutex
	opts  Options
	log   actioncache.Logger
	hooks Hooks

	phase Phase
	// seq is the invocation token: bumped on every start, retry, reset and
	// timeout so that superseded continuations discard themselves.
	seq       uint64
	tries     int // invocations within the current sequence
	prePause  Phase
	startedAt time.Time
	deadline  time.Time
	lastErr   error
	result    R
	hasResult bool
	fn        Action[R]

	timeout        *time.Timer
	resetTimer     *time.Timer
	pauseRemaining time.Duration

	subs      []subscriber
	nextSubID uint64
}

func New[R any](opts Options) *Machine[R] {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	m := &Machine[R]{opts: opts, log: opts.Logger, hooks: opts.Hooks}
	if m.log == nil {
		m.log = actioncache.NopLogger{}
	}
	if m.hooks == nil {
		m.hooks = NopHooks{}
	}
	return m
}

// Start begins a fresh sequence with fn. It is fire-and-forget: failures
// surface as phase Error with LastError, never as a return value.
//
// From pending, retrying or success it is a no-op returning false - the
// single-flight guarantee; fn is not invoked and the attempt count is
// untouched. From paused it resumes the in-flight invocation without
// invoking fn.
func (m *Machine[R]) Start(ctx context.Context, fn Action[R]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case Paused:
		m.resumeLocked()
		return true
	case Pending, Retrying, Success:
		m.hooks.InvalidOp("start", m.phase)
		return false
	}
	if fn == nil {
		m.hooks.InvalidOp("start", m.phase)
		return false
	}
	m.beginLocked(ctx, fn, Pending, 1)
	return true
}

// Retry re-invokes the sequence's action after a failure. Valid only from
// Error and only while the invocation budget (MaxRetries+1 total) lasts.
func (m *Machine[R]) Retry(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != Error || m.fn == nil {
		m.hooks.InvalidOp("retry", m.phase)
		return false
	}
	if m.tries > m.opts.MaxRetries {
		m.hooks.RetriesExhausted(m.tries)
		m.log.Debug("retry refused, budget spent",
			actioncache.Fields{"tries": m.tries, "max_retries": m.opts.MaxRetries})
		return false
	}
	m.beginLocked(ctx, m.fn, Retrying, m.tries+1)
	return true
}

// Pause freezes the visible phase without cancelling the underlying action;
// it keeps running and its settlement, when it arrives, is applied. Unless
// PauseExtendsTimeout is set the timeout clock keeps running and may move a
// paused machine to Error.
func (m *Machine[R]) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case Pending, Retrying:
	default:
		m.hooks.InvalidOp("pause", m.phase)
		return false
	}
	m.prePause = m.phase
	if m.opts.PauseExtendsTimeout && m.timeout != nil && m.timeout.Stop() {
		remaining := time.Until(m.deadline)
		if remaining <= 0 {
			remaining = time.Nanosecond // budget already spent; fire on resume
		}
		m.pauseRemaining = remaining
	}
	m.transitionLocked(Paused)
	return true
}

// Resume returns a paused machine to its in-flight display phase,
// preserving the same invocation.
func (m *Machine[R]) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != Paused {
		m.hooks.InvalidOp("resume", m.phase)
		return false
	}
	m.resumeLocked()
	return true
}

// Reset forces the machine back to idle, clearing the last error and
// discarding any still-running invocation's future result. Valid from idle
// (no-op), success and error.
func (m *Machine[R]) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case Idle:
		return true
	case Success, Error:
		m.resetLocked()
		return true
	default:
		m.hooks.InvalidOp("reset", m.phase)
		return false
	}
}

// Subscribe registers an observer for phase changes and returns its
// unsubscribe handle. Observers fire exactly once per transition,
// synchronously with it, in subscription order, while the machine's lock is
// held: callbacks must return quickly and must not call back into the
// Machine (spawn a goroutine for that).
func (m *Machine[R]) Subscribe(fn func(cur, prev Phase)) (unsub func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
		})
	}
}

// Phase returns the current lifecycle phase.
func (m *Machine[R]) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Attempt returns the number of invocations made in the current sequence
// (1 after Start, +1 per Retry). It never decreases within a sequence.
func (m *Machine[R]) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tries
}

// LastError returns the failure recorded by the most recent invocation:
// the action's own error, a *TimeoutError, or a *PanicError.
func (m *Machine[R]) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Result returns the value of the last successful invocation.
func (m *Machine[R]) Result() (R, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.hasResult
}

// StartedAt returns when the current/last invocation entered pending.
func (m *Machine[R]) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Deadline returns the running invocation's timeout deadline, if armed.
func (m *Machine[R]) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.phase.InFlight() || m.deadline.IsZero() {
		return time.Time{}, false
	}
	return m.deadline, true
}

// beginLocked starts invocation number tries of the sequence.
func (m *Machine[R]) beginLocked(ctx context.Context, fn Action[R], to Phase, tries int) {
	m.stopTimersLocked()
	m.seq++
	token := m.seq
	m.tries = tries
	m.fn = fn
	m.lastErr = nil
	m.hasResult = false
	m.startedAt = time.Now()

	if m.opts.Timeout > 0 {
		m.deadline = m.startedAt.Add(m.opts.Timeout)
		m.timeout = time.AfterFunc(m.opts.Timeout, func() { m.onTimeout(token) })
	} else {
		m.deadline = time.Time{}
	}

	m.transitionLocked(to)
	go m.run(ctx, fn, token)
}

func (m *Machine[R]) run(ctx context.Context, fn Action[R], token uint64) {
	res, err := invoke(ctx, fn)
	m.settle(token, res, err)
}

// invoke converts a synchronous panic into a regular failure.
func invoke[R any](ctx context.Context, fn Action[R]) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

func (m *Machine[R]) settle(token uint64, res R, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.seq {
		// superseded by timeout, reset or a newer start
		m.hooks.ResultDiscarded(m.tries, err)
		m.log.Debug("late settlement discarded", actioncache.Fields{"err": err})
		return
	}

	m.stopTimeoutLocked()
	if err != nil {
		m.lastErr = err
		m.transitionLocked(Error)
	} else {
		m.result = res
		m.hasResult = true
		m.lastErr = nil
		m.transitionLocked(Success)
	}
	m.armAutoResetLocked()
}

func (m *Machine[R]) onTimeout(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.seq {
		return
	}
	switch m.phase {
	case Pending, Retrying:
	case Paused:
		if m.opts.PauseExtendsTimeout {
			// lost the race against Pause's timer stop; burn the rest of
			// the budget on resume instead
			m.pauseRemaining = time.Nanosecond
			return
		}
	default:
		return
	}

	m.seq++ // stop trusting the in-flight invocation
	m.lastErr = &TimeoutError{After: m.opts.Timeout, Attempt: m.tries}
	m.hooks.TimedOut(m.tries, m.opts.Timeout)
	m.transitionLocked(Error)
	m.armAutoResetLocked()
}

func (m *Machine[R]) resumeLocked() {
	if m.opts.PauseExtendsTimeout && m.pauseRemaining > 0 {
		token := m.seq
		m.deadline = time.Now().Add(m.pauseRemaining)
		m.timeout = time.AfterFunc(m.pauseRemaining, func() { m.onTimeout(token) })
		m.pauseRemaining = 0
	}
	to := m.prePause
	if to != Pending && to != Retrying {
		to = Pending
	}
	m.transitionLocked(to)
}

func (m *Machine[R]) resetLocked() {
	m.stopTimersLocked()
	m.seq++
	m.lastErr = nil
	m.hasResult = false
	m.transitionLocked(Idle)
}

func (m *Machine[R]) armAutoResetLocked() {
	if !m.opts.AutoReset {
		return
	}
	var d time.Duration
	switch m.phase {
	case Success:
		d = m.opts.SuccessFor
	case Error:
		d = m.opts.ErrorFor
	default:
		return
	}
	if d <= 0 {
		return // stay in the settled phase
	}
	token := m.seq
	m.resetTimer = time.AfterFunc(d, func() { m.autoReset(token) })
}

func (m *Machine[R]) autoReset(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.seq || !m.phase.Settled() {
		return
	}
	m.resetLocked()
}

func (m *Machine[R]) transitionLocked(to Phase) {
	if to == m.phase {
		return
	}
	prev := m.phase
	m.phase = to
	m.hooks.Transition(prev, to, m.tries)
	m.log.Debug("phase transition", actioncache.Fields{
		"from":    prev.String(),
		"to":      to.String(),
		"attempt": m.tries,
	})
	for _, s := range m.subs {
		s.fn(to, prev)
	}
}

func (m *Machine[R]) stopTimeoutLocked() {
	if m.timeout != nil {
		m.timeout.Stop()
		m.timeout = nil
	}
}

func (m *Machine[R]) stopTimersLocked() {
	m.stopTimeoutLocked()
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.pauseRemaining = 0
}
