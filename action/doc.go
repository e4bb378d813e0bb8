// Package action sequences a single user-triggered asynchronous operation
// through a bounded set of phases: idle, pending, success, error, paused and
// retrying. The machine owns no I/O - it is driven by a caller-supplied
// Action callback - and enforces single-flight (at most one in-flight action
// per machine), timeout protection, bounded retry, pause/resume of the
// visible phase, and optional auto-reset back to idle.
//
// Timeouts are soft: the underlying action is not aborted, the machine just
// stops trusting its result. Every invocation captures a sequence token; a
// settlement or timer callback whose token no longer matches the machine's
// current one is discarded, so a late settlement can never move the phase
// away from a timeout's error. Actions that must truly stop should observe
// the context passed to Start.
//
// Failures never propagate out of Start: they surface as phase error with
// LastError, delivered to observers registered via Subscribe. A typical
// caller reacts to success by invalidating an actioncache tag so dependent
// views refetch.
package action
