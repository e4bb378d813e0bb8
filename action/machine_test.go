package action

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// phaseLog records transitions as a subscriber would.
type phaseLog struct {
	mu  sync.Mutex
	seq []Phase
}

func (r *phaseLog) record(cur, _ Phase) {
	r.mu.Lock()
	r.seq = append(r.seq, cur)
	r.mu.Unlock()
}

func (r *phaseLog) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.seq))
	copy(out, r.seq)
	return out
}

type hookRec struct {
	mu        sync.Mutex
	timedOut  int
	discarded int
	exhausted int
	invalid   int
}

func (h *hookRec) Transition(Phase, Phase, int) {}
func (h *hookRec) TimedOut(int, time.Duration) {
	h.mu.Lock()
	h.timedOut++
	h.mu.Unlock()
}
func (h *hookRec) ResultDiscarded(int, error) {
	h.mu.Lock()
	h.discarded++
	h.mu.Unlock()
}
func (h *hookRec) RetriesExhausted(int) {
	h.mu.Lock()
	h.exhausted++
	h.mu.Unlock()
}
func (h *hookRec) InvalidOp(string, Phase) {
	h.mu.Lock()
	h.invalid++
	h.mu.Unlock()
}

func (h *hookRec) counts() (timedOut, discarded, exhausted, invalid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timedOut, h.discarded, h.exhausted, h.invalid
}

func waitPhase[R any](t *testing.T, m *Machine[R], want Phase, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if m.Phase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase %v not reached within %s (still %v)", want, within, m.Phase())
}

func samePhases(a, b []Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestStartSuccessFlow drives idle -> pending -> success and checks the
// observer saw exactly that.
func TestStartSuccessFlow(t *testing.T) {
	m := New[int](Options{Timeout: 5 * time.Second})
	var rec phaseLog
	defer m.Subscribe(rec.record)()

	ok := m.Start(context.Background(), func(context.Context) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 42, nil
	})
	if !ok {
		t.Fatal("Start refused from idle")
	}
	waitPhase(t, m, Success, 2*time.Second)

	if got := rec.phases(); !samePhases(got, []Phase{Pending, Success}) {
		t.Fatalf("observed phases %v, want [pending success]", got)
	}
	if m.Attempt() != 1 {
		t.Fatalf("Attempt = %d, want 1", m.Attempt())
	}
	if v, ok := m.Result(); !ok || v != 42 {
		t.Fatalf("Result = %v/%v, want 42/true", v, ok)
	}
	if err := m.LastError(); err != nil {
		t.Fatalf("LastError = %v, want nil", err)
	}
}

// TestStartWhilePendingIsNoOp pins the single-flight guarantee: a second
// Start neither invokes the new action nor bumps the attempt count.
func TestStartWhilePendingIsNoOp(t *testing.T) {
	release := make(chan struct{})
	var first, second atomic.Int32

	m := New[string](Options{Timeout: 5 * time.Second})
	m.Start(context.Background(), func(context.Context) (string, error) {
		first.Add(1)
		<-release
		return "done", nil
	})
	waitPhase(t, m, Pending, time.Second)

	if m.Start(context.Background(), func(context.Context) (string, error) {
		second.Add(1)
		return "sneaky", nil
	}) {
		t.Fatal("second Start succeeded while pending")
	}
	if m.Attempt() != 1 {
		t.Fatalf("Attempt = %d after rejected Start, want 1", m.Attempt())
	}

	close(release)
	waitPhase(t, m, Success, 2*time.Second)
	if first.Load() != 1 || second.Load() != 0 {
		t.Fatalf("invocations first=%d second=%d, want 1/0", first.Load(), second.Load())
	}
	if v, _ := m.Result(); v != "done" {
		t.Fatalf("Result = %q, want %q", v, "done")
	}
}

// TestTimeoutBeatsLateSettlement: once the timer wins, the action's eventual
// settlement must not pull the phase back to success.
func TestTimeoutBeatsLateSettlement(t *testing.T) {
	release := make(chan struct{})
	hooks := &hookRec{}
	m := New[int](Options{Timeout: 40 * time.Millisecond, Hooks: hooks})

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 7, nil
	})
	waitPhase(t, m, Error, 2*time.Second)

	var te *TimeoutError
	if err := m.LastError(); !errors.As(err, &te) {
		t.Fatalf("LastError = %v, want *TimeoutError", err)
	}
	if !te.Timeout() {
		t.Fatal("TimeoutError.Timeout() = false")
	}

	// let the action settle late; it must be discarded
	close(release)
	time.Sleep(60 * time.Millisecond)
	if m.Phase() != Error {
		t.Fatalf("phase = %v after late settlement, want error", m.Phase())
	}
	if _, ok := m.Result(); ok {
		t.Fatal("late result was applied")
	}
	if _, discarded, _, _ := hooks.counts(); discarded != 1 {
		t.Fatalf("discarded = %d, want 1", discarded)
	}
}

// TestAutoResetAfterError: idle -> pending -> error -> idle on a rejecting
// action with AutoReset.
func TestAutoResetAfterError(t *testing.T) {
	m := New[int](Options{
		Timeout:   5 * time.Second,
		AutoReset: true,
		ErrorFor:  80 * time.Millisecond,
	})
	var rec phaseLog
	defer m.Subscribe(rec.record)()

	bad := errors.New("bad")
	m.Start(context.Background(), func(context.Context) (int, error) { return 0, bad })
	waitPhase(t, m, Error, 2*time.Second)
	if !errors.Is(m.LastError(), bad) {
		t.Fatalf("LastError = %v, want %v", m.LastError(), bad)
	}
	waitPhase(t, m, Idle, 2*time.Second)
	if err := m.LastError(); err != nil {
		t.Fatalf("LastError = %v after auto-reset, want nil", err)
	}
	if got := rec.phases(); !samePhases(got, []Phase{Pending, Error, Idle}) {
		t.Fatalf("observed phases %v, want [pending error idle]", got)
	}
}

func TestAutoResetAfterSuccess(t *testing.T) {
	m := New[int](Options{
		Timeout:    5 * time.Second,
		AutoReset:  true,
		SuccessFor: 60 * time.Millisecond,
	})
	m.Start(context.Background(), func(context.Context) (int, error) { return 1, nil })
	waitPhase(t, m, Success, 2*time.Second)
	waitPhase(t, m, Idle, 2*time.Second)
}

// TestSuccessStaysWithoutAutoReset: SuccessFor=0 means stay settled, and
// Start from success is a no-op.
func TestSuccessStaysWithoutAutoReset(t *testing.T) {
	m := New[int](Options{Timeout: 5 * time.Second})
	m.Start(context.Background(), func(context.Context) (int, error) { return 1, nil })
	waitPhase(t, m, Success, 2*time.Second)

	time.Sleep(50 * time.Millisecond)
	if m.Phase() != Success {
		t.Fatalf("phase = %v, want success", m.Phase())
	}
	if m.Start(context.Background(), func(context.Context) (int, error) { return 2, nil }) {
		t.Fatal("Start succeeded from success")
	}
}

// TestRetryBudget: MaxRetries=2 allows 3 invocations total, then Retry is
// refused.
func TestRetryBudget(t *testing.T) {
	var calls atomic.Int32
	hooks := &hookRec{}
	m := New[int](Options{Timeout: 5 * time.Second, MaxRetries: 2, Hooks: hooks})

	fail := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("nope")
	}
	m.Start(context.Background(), fail)
	waitPhase(t, m, Error, 2*time.Second)

	for i := 0; i < 2; i++ {
		if !m.Retry(context.Background()) {
			t.Fatalf("Retry #%d refused", i+1)
		}
		waitPhase(t, m, Error, 2*time.Second)
	}
	if m.Retry(context.Background()) {
		t.Fatal("Retry succeeded past the budget")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("invocations = %d, want 3 (MaxRetries+1)", got)
	}
	if m.Attempt() != 3 {
		t.Fatalf("Attempt = %d, want 3", m.Attempt())
	}
	if _, _, exhausted, _ := hooks.counts(); exhausted != 1 {
		t.Fatalf("exhausted = %d, want 1", exhausted)
	}
}

func TestRetryInvalidOutsideError(t *testing.T) {
	release := make(chan struct{})
	m := New[int](Options{Timeout: 5 * time.Second, MaxRetries: 3})

	if m.Retry(context.Background()) {
		t.Fatal("Retry succeeded from idle")
	}
	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	waitPhase(t, m, Pending, time.Second)
	if m.Retry(context.Background()) {
		t.Fatal("Retry succeeded while pending")
	}
	close(release)
}

// TestResetIdempotentFromIdle: reset in idle changes nothing and notifies
// nobody.
func TestResetIdempotentFromIdle(t *testing.T) {
	m := New[int](Options{})
	var rec phaseLog
	defer m.Subscribe(rec.record)()

	if !m.Reset() {
		t.Fatal("Reset from idle returned false")
	}
	if m.Phase() != Idle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	if got := rec.phases(); len(got) != 0 {
		t.Fatalf("observed phases %v, want none", got)
	}
}

func TestResetClearsSettledState(t *testing.T) {
	m := New[int](Options{Timeout: 5 * time.Second})
	m.Start(context.Background(), func(context.Context) (int, error) { return 9, nil })
	waitPhase(t, m, Success, 2*time.Second)

	if !m.Reset() {
		t.Fatal("Reset from success refused")
	}
	if m.Phase() != Idle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	if _, ok := m.Result(); ok {
		t.Fatal("Result survived Reset")
	}
}

// TestPauseFreezesVisiblePhase: the action keeps running while paused and
// its settlement is applied.
func TestPauseFreezesVisiblePhase(t *testing.T) {
	release := make(chan struct{})
	m := New[int](Options{Timeout: 5 * time.Second})
	var rec phaseLog
	defer m.Subscribe(rec.record)()

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 5, nil
	})
	waitPhase(t, m, Pending, time.Second)
	if !m.Pause() {
		t.Fatal("Pause refused while pending")
	}
	if m.Phase() != Paused {
		t.Fatalf("phase = %v, want paused", m.Phase())
	}

	close(release)
	waitPhase(t, m, Success, 2*time.Second)
	if got := rec.phases(); !samePhases(got, []Phase{Pending, Paused, Success}) {
		t.Fatalf("observed phases %v, want [pending paused success]", got)
	}
}

func TestResumeRestoresPending(t *testing.T) {
	release := make(chan struct{})
	m := New[int](Options{Timeout: 5 * time.Second})

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	waitPhase(t, m, Pending, time.Second)
	m.Pause()
	if !m.Resume() {
		t.Fatal("Resume refused while paused")
	}
	if m.Phase() != Pending {
		t.Fatalf("phase = %v, want pending", m.Phase())
	}
	if m.Resume() {
		t.Fatal("Resume succeeded while pending")
	}
	close(release)
	waitPhase(t, m, Success, 2*time.Second)
}

// TestPauseKeepsTimeoutClockByDefault documents the chosen default: pausing
// does not stop the timeout clock, so a paused machine can still time out.
func TestPauseKeepsTimeoutClockByDefault(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New[int](Options{Timeout: 50 * time.Millisecond})

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	waitPhase(t, m, Pending, time.Second)
	m.Pause()

	waitPhase(t, m, Error, 2*time.Second)
	var te *TimeoutError
	if !errors.As(m.LastError(), &te) {
		t.Fatalf("LastError = %v, want *TimeoutError", m.LastError())
	}
}

// TestPauseExtendsTimeout: with the option set, time spent paused does not
// count against the budget; the remainder is re-armed on resume.
func TestPauseExtendsTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New[int](Options{Timeout: 80 * time.Millisecond, PauseExtendsTimeout: true})

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	waitPhase(t, m, Pending, time.Second)
	m.Pause()

	// well past the original deadline
	time.Sleep(200 * time.Millisecond)
	if m.Phase() != Paused {
		t.Fatalf("phase = %v while paused, want paused", m.Phase())
	}

	m.Resume()
	// the remaining ~80ms budget now runs out
	waitPhase(t, m, Error, 2*time.Second)
	var te *TimeoutError
	if !errors.As(m.LastError(), &te) {
		t.Fatalf("LastError = %v, want *TimeoutError", m.LastError())
	}
}

// TestStartWhilePausedResumes: Start on a paused machine is the resume path;
// the new callback is not invoked.
func TestStartWhilePausedResumes(t *testing.T) {
	release := make(chan struct{})
	var sneaky atomic.Int32
	m := New[int](Options{Timeout: 5 * time.Second})

	m.Start(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	waitPhase(t, m, Pending, time.Second)
	m.Pause()

	if !m.Start(context.Background(), func(context.Context) (int, error) {
		sneaky.Add(1)
		return 2, nil
	}) {
		t.Fatal("Start refused from paused")
	}
	if m.Phase() != Pending {
		t.Fatalf("phase = %v after Start-from-paused, want pending", m.Phase())
	}

	close(release)
	waitPhase(t, m, Success, 2*time.Second)
	if sneaky.Load() != 0 {
		t.Fatal("Start from paused invoked the new action")
	}
	if v, _ := m.Result(); v != 1 {
		t.Fatalf("Result = %d, want the original invocation's 1", v)
	}
}

func TestPanicBecomesError(t *testing.T) {
	m := New[int](Options{Timeout: 5 * time.Second})
	m.Start(context.Background(), func(context.Context) (int, error) {
		panic("boom")
	})
	waitPhase(t, m, Error, 2*time.Second)

	var pe *PanicError
	if !errors.As(m.LastError(), &pe) {
		t.Fatalf("LastError = %v, want *PanicError", m.LastError())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := New[int](Options{Timeout: 5 * time.Second})
	var a, b phaseLog
	unsubA := m.Subscribe(a.record)
	defer m.Subscribe(b.record)()

	m.Start(context.Background(), func(context.Context) (int, error) { return 0, nil })
	waitPhase(t, m, Success, 2*time.Second)
	unsubA()

	m.Reset()
	if got := a.phases(); !samePhases(got, []Phase{Pending, Success}) {
		t.Fatalf("unsubscribed observer saw %v, want [pending success]", got)
	}
	if got := b.phases(); !samePhases(got, []Phase{Pending, Success, Idle}) {
		t.Fatalf("remaining observer saw %v, want [pending success idle]", got)
	}
}

// TestRetryAfterTimeout: a timed-out sequence can be retried and the retry's
// own settlement is honored.
func TestRetryAfterTimeout(t *testing.T) {
	var calls atomic.Int32
	m := New[int](Options{Timeout: 50 * time.Millisecond, MaxRetries: 1})

	m.Start(context.Background(), func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			time.Sleep(500 * time.Millisecond) // first invocation times out
			return 0, nil
		}
		return 3, nil
	})
	waitPhase(t, m, Error, 2*time.Second)

	if !m.Retry(context.Background()) {
		t.Fatal("Retry refused after timeout")
	}
	waitPhase(t, m, Success, 2*time.Second)
	if v, _ := m.Result(); v != 3 {
		t.Fatalf("Result = %d, want 3", v)
	}
	if m.Attempt() != 2 {
		t.Fatalf("Attempt = %d, want 2", m.Attempt())
	}
}
