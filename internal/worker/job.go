package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ayl/internal/message"
	"ayl/internal/notify"
	"ayl/internal/queue"
)

// Decoder turns a raw job body into an executable message.
type Decoder interface {
	Decode(raw []byte) (*message.Message, error)
}

// Disposition records what happened to a Job's reservation.
type Disposition string

const (
	DispositionNone    Disposition = ""
	DispositionDeleted Disposition = "delete"
	DispositionDecayed Disposition = "decay"
	DispositionBuried  Disposition = "bury"
)

// Job wraps a reserved queue.Item. Backend errors raised while disposing
// of or inspecting the item are logged, reported and swallowed here; they
// never reach the Loop.
type Job struct {
	item     queue.Item
	queue    string
	decoder  Decoder
	notifier notify.Notifier

	decodeOnce sync.Once
	msg        *message.Message
	decodeErr  error

	disposition Disposition
}

func NewJob(item queue.Item, queueName string, decoder Decoder, notifier notify.Notifier) *Job {
	return &Job{item: item, queue: queueName, decoder: decoder, notifier: notifier}
}

func (j *Job) ID() string    { return j.item.ID() }
func (j *Job) Queue() string { return j.queue }
func (j *Job) Body() []byte  { return j.item.Body() }

// Disposition is empty until one of Delete, Decay or Bury succeeds.
func (j *Job) Disposition() Disposition { return j.disposition }

// Message decodes the body on first call and returns the same result on
// every later call.
func (j *Job) Message() (*message.Message, error) {
	j.decodeOnce.Do(func() {
		j.msg, j.decodeErr = j.decoder.Decode(j.item.Body())
	})
	return j.msg, j.decodeErr
}

func (j *Job) Delete(ctx context.Context) bool {
	return j.dispose(ctx, DispositionDeleted, notify.SubjectDelete, j.item.Delete)
}

// Decay releases the job for another attempt. A nil delay selects the
// backend default.
func (j *Job) Decay(ctx context.Context, delay *time.Duration) bool {
	return j.dispose(ctx, DispositionDecayed, notify.SubjectDecay, func(ctx context.Context) error {
		return j.item.Decay(ctx, delay)
	})
}

func (j *Job) Bury(ctx context.Context) bool {
	return j.dispose(ctx, DispositionBuried, notify.SubjectBury, j.item.Bury)
}

// Age reports time since first enqueue. ok is false when the backend could
// not be asked; the failure has already been reported.
func (j *Job) Age(ctx context.Context) (age time.Duration, ok bool) {
	err := j.guard(func() error {
		var err error
		age, err = j.item.Age(ctx)
		return err
	})
	if err != nil {
		j.report(ctx, notify.SubjectInspect, "failed to read job age", err)
		return 0, false
	}
	return age, true
}

func (j *Job) Reservations(ctx context.Context) (n int, ok bool) {
	err := j.guard(func() error {
		var err error
		n, err = j.item.Reservations(ctx)
		return err
	})
	if err != nil {
		j.report(ctx, notify.SubjectInspect, "failed to read job reservations", err)
		return 0, false
	}
	return n, true
}

func (j *Job) dispose(ctx context.Context, d Disposition, subject string, op func(context.Context) error) bool {
	if j.disposition != DispositionNone {
		slog.WarnContext(ctx, "job already disposed", "queue", j.queue, "previous", string(j.disposition), "requested", string(d))
		return false
	}
	if err := j.guard(func() error { return op(ctx) }); err != nil {
		j.report(ctx, subject, "failed to "+string(d)+" job", err)
		return false
	}
	j.disposition = d
	slog.DebugContext(ctx, "job disposed", "queue", j.queue, "action", string(d))
	return true
}

func (j *Job) report(ctx context.Context, subject, msg string, err error) {
	slog.ErrorContext(ctx, msg, "queue", j.queue, "error", err)
	if j.notifier != nil {
		j.notifier.Deliver(ctx, subject, err)
	}
}

// guard runs fn and converts a panic from a backend client into an error.
func (j *Job) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return fn()
}
