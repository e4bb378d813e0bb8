package action

import (
	"fmt"
	"time"
)

// TimeoutError is the synthetic failure recorded when the timeout elapses
// before the action settles. The action's eventual result, if any, is
// discarded.
type TimeoutError struct {
	After   time.Duration
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action timed out after %s (attempt %d)", e.After, e.Attempt)
}

// Timeout lets callers detect the condition through errors.As plus the
// net-style interface check.
func (e *TimeoutError) Timeout() bool { return true }

// PanicError wraps a panic raised synchronously by the action callback.
// It is treated exactly like a returned error: the machine transitions to
// the error phase with this as LastError.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}
