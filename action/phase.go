package action

// Phase is the lifecycle state of one action instance.
type Phase int

const (
	Idle Phase = iota
	Pending
	Success
	Error
	Paused
	Retrying
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	case Paused:
		return "paused"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// InFlight reports whether an action invocation is currently running
// (its visible phase may be paused).
func (p Phase) InFlight() bool {
	return p == Pending || p == Retrying || p == Paused
}

// Settled reports whether the last invocation reached an outcome.
func (p Phase) Settled() bool {
	return p == Success || p == Error
}
