package worker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReserve wraps the backend error that ended a Loop.
	ErrReserve = errors.New("reserve failed")

	// ErrWatch wraps the backend error raised when subscribing to a queue.
	ErrWatch = errors.New("watch failed")
)

// DecayRequested is returned by a handler that wants its job put back
// on the queue after Delay. A nil Delay selects the backend default.
type DecayRequested struct {
	Delay *time.Duration
}

func (e *DecayRequested) Error() string {
	if e.Delay == nil {
		return "job decay requested"
	}
	return fmt.Sprintf("job decay requested (delay %s)", *e.Delay)
}

// Decay asks for the job to be retried after the backend's default delay.
func Decay() error {
	return &DecayRequested{}
}

func DecayAfter(d time.Duration) error {
	return &DecayRequested{Delay: &d}
}

// BuryRequested is returned by a handler that wants its job quarantined
// for a human to look at.
type BuryRequested struct {
	Reason string
}

func (e *BuryRequested) Error() string {
	if e.Reason == "" {
		return "job bury requested"
	}
	return "job bury requested: " + e.Reason
}

func Bury(reason string) error {
	return &BuryRequested{Reason: reason}
}

// TerminationError is returned by a handler that wants the worker process
// to exit. The job is deleted first.
type TerminationError struct {
	Code int
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("worker termination requested (exit code %d)", e.Code)
}

func Terminate(code int) error {
	return &TerminationError{Code: code}
}
