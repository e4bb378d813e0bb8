package action

import "time"

// Hooks are lightweight callbacks for high-signal machine events, aimed at
// metrics and logs rather than rendering (UI observers belong in Subscribe).
// Implementations MUST be cheap and non-blocking; they run under the
// machine's lock.
type Hooks interface {
	// Every phase transition, after the phase changed.
	Transition(from, to Phase, attempt int)

	// The timeout fired before the action settled.
	TimedOut(attempt int, after time.Duration)

	// A settlement arrived after its invocation was superseded by a
	// timeout, reset or newer start; it was dropped.
	ResultDiscarded(attempt int, err error)

	// Retry was refused because the invocation budget is spent.
	RetriesExhausted(tries int)

	// An operation invalid for the current phase was ignored.
	// op ∈ {"start", "retry", "pause", "resume", "reset"}
	InvalidOp(op string, from Phase)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Transition(Phase, Phase, int)   {}
func (NopHooks) TimedOut(int, time.Duration)    {}
func (NopHooks) ResultDiscarded(int, error)     {}
func (NopHooks) RetriesExhausted(int)           {}
func (NopHooks) InvalidOp(string, Phase)        {}
