package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ayl/internal/message"
	"ayl/internal/notify"
)

// Burial describes a job that was just buried.
type Burial struct {
	Queue        string
	JobID        string
	Payload      []byte
	Reason       string
	Reservations int
}

// Recorder keeps a durable record of buried jobs.
type Recorder interface {
	Record(ctx context.Context, b Burial) error
}

type DisposerOption func(*Disposer)

func WithRecorder(r Recorder) DisposerOption {
	return func(d *Disposer) { d.recorder = r }
}

func WithMetrics(m *Metrics) DisposerOption {
	return func(d *Disposer) { d.metrics = m }
}

// WithDefaultPolicy sets the policy used when a job's message could not
// be decoded.
func WithDefaultPolicy(p message.Policy) DisposerOption {
	return func(d *Disposer) { d.policy = p }
}

// Disposer resolves every Outcome to exactly one of delete, decay or bury.
type Disposer struct {
	notifier notify.Notifier
	recorder Recorder
	metrics  *Metrics
	policy   message.Policy
}

func NewDisposer(notifier notify.Notifier, opts ...DisposerOption) *Disposer {
	d := &Disposer{notifier: notifier, policy: message.DefaultPolicy()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Disposer) Dispose(ctx context.Context, job *Job, out Outcome) Disposition {
	switch out.Kind {
	case OutcomeSuccess:
		job.Delete(ctx)

	case OutcomeDecay:
		job.Decay(ctx, out.Delay)

	case OutcomeBury:
		d.notify(ctx, notify.SubjectBuryRequest, out.Err)
		d.bury(ctx, job, out.Err, unknownReservations)

	case OutcomeUnrecoverable:
		d.notify(ctx, notify.SubjectDecode, out.Err)
		job.Delete(ctx)

	case OutcomeTermination:
		d.notify(ctx, notify.SubjectTerminate, out.Err)
		job.Delete(ctx)

	case OutcomeFailure:
		d.failure(ctx, job, out.Err)

	default:
		slog.ErrorContext(ctx, "unknown outcome, deleting job", "outcome", out.Kind.String())
		job.Delete(ctx)
	}

	d.metrics.observeDisposition(job.Disposition(), out.Kind)
	return job.Disposition()
}

func (d *Disposer) failure(ctx context.Context, job *Job, cause error) {
	p := d.policy
	if msg, err := job.Message(); err == nil && msg != nil {
		p = msg.Policy
	}

	switch p.OnFailure {
	case message.ActionBury:
		d.notify(ctx, notify.SubjectBuryPolicy, cause)
		d.bury(ctx, job, cause, unknownReservations)

	case message.ActionDecay:
		if p.RetryMode == message.RetryAge {
			d.decayByAge(ctx, job, p, cause)
			return
		}
		d.decayByAttempts(ctx, job, p, cause)

	default:
		d.notify(ctx, notify.SubjectFailure, cause)
		job.Delete(ctx)
	}
}

// decayByAttempts retries until the job has been reserved DecayThreshold
// times. An unreadable count is treated as exhausted.
func (d *Disposer) decayByAttempts(ctx context.Context, job *Job, p message.Policy, cause error) {
	n, ok := job.Reservations(ctx)
	if ok && n < p.DecayThreshold {
		slog.InfoContext(ctx, "decaying failed job", "queue", job.Queue(), "reservations", n, "threshold", p.DecayThreshold, "error", cause)
		job.Decay(ctx, delayOrDefault(p.DecayDelay))
		return
	}
	d.notify(ctx, notify.SubjectQuarantined, cause)
	d.bury(ctx, job, cause, n)
}

// decayByAge retries until the job is older than MaxAge, then drops it.
// An unreadable age is treated as expired.
func (d *Disposer) decayByAge(ctx context.Context, job *Job, p message.Policy, cause error) {
	age, ok := job.Age(ctx)
	if ok && age <= p.MaxAge {
		slog.InfoContext(ctx, "decaying failed job", "queue", job.Queue(), "age", age, "max_age", p.MaxAge, "error", cause)
		job.Decay(ctx, delayOrDefault(p.DecayDelay))
		return
	}
	d.notify(ctx, notify.SubjectTooOld, cause)
	job.Delete(ctx)
}

const unknownReservations = -1

// bury buries job and hands it to the recorder. n is the reservation count
// if the caller already read it.
func (d *Disposer) bury(ctx context.Context, job *Job, cause error, n int) {
	if d.recorder != nil && n == unknownReservations {
		n, _ = job.Reservations(ctx)
	}
	if !job.Bury(ctx) || d.recorder == nil {
		return
	}

	b := Burial{
		Queue:        job.Queue(),
		JobID:        job.ID(),
		Payload:      job.Body(),
		Reason:       reason(cause),
		Reservations: n,
	}
	if err := d.record(ctx, b); err != nil {
		slog.ErrorContext(ctx, "failed to record buried job", "queue", b.Queue, "error", err)
		d.notify(ctx, notify.SubjectRecord, err)
	}
}

func (d *Disposer) record(ctx context.Context, b Burial) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("recorder panicked")
		}
	}()
	return d.recorder.Record(ctx, b)
}

func (d *Disposer) notify(ctx context.Context, subject string, cause error) {
	if d.notifier != nil {
		d.notifier.Deliver(ctx, subject, cause)
	}
}

func delayOrDefault(d time.Duration) *time.Duration {
	if d <= 0 {
		return nil
	}
	return &d
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	var bury *BuryRequested
	if errors.As(err, &bury) && bury.Reason != "" {
		return bury.Reason
	}
	return err.Error()
}
