package message

import (
	"fmt"
	"time"
)

// Action is what the worker does with a job whose handler failed
// unexpectedly.
type Action string

const (
	ActionDelete Action = "delete"
	ActionDecay  Action = "decay"
	ActionBury   Action = "bury"
)

// RetryMode selects how a decaying job is eventually retired.
type RetryMode string

const (
	// RetryAttempts buries the job once it has been reserved DecayThreshold times.
	RetryAttempts RetryMode = "attempts"

	// RetryAge deletes the job once it is older than MaxAge.
	RetryAge RetryMode = "age"
)

// DefaultMaxAge is the age limit of the age-based retry mode.
const DefaultMaxAge = 60 * time.Second

// Policy describes how unexpected failures of one message are resolved.
type Policy struct {
	OnFailure      Action
	DecayThreshold int
	// DecayDelay of zero defers to the backend's default delay.
	DecayDelay time.Duration
	MaxAge     time.Duration
	RetryMode  RetryMode
}

func (p Policy) Validate() error {
	switch p.OnFailure {
	case ActionDelete, ActionDecay, ActionBury:
	default:
		return fmt.Errorf("unknown failed job handler %q", p.OnFailure)
	}
	switch p.RetryMode {
	case RetryAttempts, RetryAge:
	default:
		return fmt.Errorf("unknown retry mode %q", p.RetryMode)
	}
	if p.DecayThreshold < 1 {
		return fmt.Errorf("decay threshold must be at least 1, got %d", p.DecayThreshold)
	}
	if p.DecayDelay < 0 || p.MaxAge < 0 {
		return fmt.Errorf("decay delay and max age must not be negative")
	}
	return nil
}

// Merge fills every zero field of p from def.
func (p Policy) Merge(def Policy) Policy {
	if p.OnFailure == "" {
		p.OnFailure = def.OnFailure
	}
	if p.DecayThreshold == 0 {
		p.DecayThreshold = def.DecayThreshold
	}
	if p.DecayDelay == 0 {
		p.DecayDelay = def.DecayDelay
	}
	if p.MaxAge == 0 {
		p.MaxAge = def.MaxAge
	}
	if p.RetryMode == "" {
		p.RetryMode = def.RetryMode
	}
	return p
}

// DefaultPolicy deletes on failure and allows three attempts when decaying.
func DefaultPolicy() Policy {
	return Policy{
		OnFailure:      ActionDelete,
		DecayThreshold: 3,
		MaxAge:         DefaultMaxAge,
		RetryMode:      RetryAttempts,
	}
}
