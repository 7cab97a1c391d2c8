// Package notify delivers operational alerts. Delivery is best effort:
// a Notifier never returns an error and never panics into its caller.
package notify

import (
	"context"
	"log/slog"
)

const (
	SubjectDecode      = "Error extracting message from job"
	SubjectDelete      = "Error deleting job"
	SubjectDecay       = "Error decaying job"
	SubjectBury        = "Error burying job"
	SubjectInspect     = "Error reading job statistics"
	SubjectRecord      = "Error recording quarantined job"
	SubjectReserve     = "Unexpected exception in reserve loop"
	SubjectWatch       = "Error watching queue"
	SubjectFailure     = "Exception while processing job"
	SubjectBuryRequest = "Job buried on request"
	SubjectBuryPolicy  = "Job buried by failure policy"
	SubjectQuarantined = "Job permanently quarantined"
	SubjectTooOld      = "Deleting decayed job; it just took too long"
	SubjectTerminate   = "Job requested worker termination"
	SubjectSubmit      = "Error submitting message to queue"
)

type Notifier interface {
	Deliver(ctx context.Context, subject string, cause error)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, subject string, cause error)

func (f Func) Deliver(ctx context.Context, subject string, cause error) { f(ctx, subject, cause) }

// Log writes every alert as an error record.
type Log struct {
	logger *slog.Logger
}

func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{logger: l}
}

func (n *Log) Deliver(ctx context.Context, subject string, cause error) {
	n.logger.ErrorContext(ctx, "notification", "subject", subject, "error", cause)
}

// Multi fans an alert out to every notifier in order.
type Multi []Notifier

func (m Multi) Deliver(ctx context.Context, subject string, cause error) {
	for _, n := range m {
		deliverSafely(ctx, n, subject, cause)
	}
}

func deliverSafely(ctx context.Context, n Notifier, subject string, cause error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "notifier panicked", "subject", subject, "panic", r)
		}
	}()
	n.Deliver(ctx, subject, cause)
}
