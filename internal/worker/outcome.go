package worker

import (
	"errors"
	"time"

	"ayl/internal/message"
)

// OutcomeKind is the closed set of results of one execution attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeDecay
	OutcomeBury
	OutcomeUnrecoverable
	OutcomeTermination
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeDecay:
		return "decay_requested"
	case OutcomeBury:
		return "bury_requested"
	case OutcomeUnrecoverable:
		return "unrecoverable"
	case OutcomeTermination:
		return "termination"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind OutcomeKind
	// Delay is only meaningful for OutcomeDecay.
	Delay *time.Duration
	Err   error
}

// Classify maps a handler's return value onto an Outcome. Termination is
// checked first so that it can never be mistaken for an ordinary failure.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}

	var term *TerminationError
	if errors.As(err, &term) {
		return Outcome{Kind: OutcomeTermination, Err: err}
	}

	var decay *DecayRequested
	if errors.As(err, &decay) {
		return Outcome{Kind: OutcomeDecay, Delay: decay.Delay, Err: err}
	}

	var bury *BuryRequested
	if errors.As(err, &bury) {
		return Outcome{Kind: OutcomeBury, Err: err}
	}

	if errors.Is(err, message.ErrUnrecoverable) {
		return Outcome{Kind: OutcomeUnrecoverable, Err: err}
	}

	return Outcome{Kind: OutcomeFailure, Err: err}
}
