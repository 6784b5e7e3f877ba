package session

import "errors"

// State is the lifecycle state of one exam attempt. It is owned
// exclusively by the Controller; timer ticks, visibility events and
// user actions all consult it before mutating anything.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateTerminating
	StateSubmitted
	StateTerminated
	StateFailed
)

// String returns the durable wire name of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateTerminating:
		return "TERMINATING"
	case StateSubmitted:
		return "SUBMITTED"
	case StateTerminated:
		return "TERMINATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further mutation is accepted.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateTerminated || s == StateFailed
}

// SubmitReason records which of the three call sites triggered submission.
type SubmitReason string

const (
	ReasonManual         SubmitReason = "MANUAL"
	ReasonTimerExpired   SubmitReason = "TIMER_EXPIRED"
	ReasonViolationLimit SubmitReason = "VIOLATION_LIMIT"
)

// Controller sentinel errors.
var (
	ErrNotStarted     = errors.New("attempt has not been started")
	ErrNotInProgress  = errors.New("attempt is not in progress")
	ErrSubmitInFlight = errors.New("submission already in flight")
)
