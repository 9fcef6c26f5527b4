package transfer

// Status is the lifecycle state of a session.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusThrottled
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusThrottled:
		return "throttled"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed. Throttled
// only ever goes back to Active; a throttled session that has to end is moved
// to Active first.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusFailed || next == StatusCancelled
	case StatusActive:
		return next == StatusThrottled || next.Terminal()
	case StatusThrottled:
		return next == StatusActive
	default:
		return false
	}
}
