package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ayl/internal/middleware"
	"ayl/internal/notify"
	"ayl/internal/queue"

	"github.com/google/uuid"
)

// StopReason says why a Loop returned.
type StopReason int

const (
	StopNone StopReason = iota
	// StopExhausted means the backend had nothing left to reserve.
	StopExhausted
	// StopCancelled means Stop was called or the context was cancelled.
	StopCancelled
	// StopFatal means the backend failed to watch or reserve.
	StopFatal
	// StopTerminated means a handler asked the process to exit.
	StopTerminated
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopExhausted:
		return "exhausted"
	case StopCancelled:
		return "cancelled"
	case StopFatal:
		return "fatal"
	case StopTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Result struct {
	Reason    StopReason
	Processed int
	Err       error
}

// Loop reserves, executes and disposes of one job at a time.
type Loop struct {
	backend  queue.Backend
	decoder  Decoder
	notifier notify.Notifier
	disposer *Disposer
	metrics  *Metrics

	stop atomic.Bool
}

func NewLoop(backend queue.Backend, decoder Decoder, notifier notify.Notifier, disposer *Disposer, metrics *Metrics) *Loop {
	if disposer == nil {
		disposer = NewDisposer(notifier, WithMetrics(metrics))
	}
	return &Loop{
		backend:  backend,
		decoder:  decoder,
		notifier: notifier,
		disposer: disposer,
		metrics:  metrics,
	}
}

// Stop asks the loop to return before its next reservation. A job that is
// already executing runs to completion and is disposed of first.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// Run consumes queueName until the backend is exhausted, the loop is
// stopped, a reservation fails, or a handler requests termination. The
// returned error is non-nil only for StopFatal and StopTerminated.
func (l *Loop) Run(ctx context.Context, queueName string) (Result, error) {
	if err := l.backend.Watch(ctx, queueName); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrWatch, queueName, err)
		slog.ErrorContext(ctx, "failed to watch queue", "queue", queueName, "error", err)
		l.notify(ctx, notify.SubjectWatch, err)
		return Result{Reason: StopFatal, Err: err}, err
	}
	slog.InfoContext(ctx, "worker started", "queue", queueName)

	var res Result
	for res.Reason == StopNone {
		if l.stopping(ctx) {
			res.Reason = StopCancelled
			break
		}

		item, err := l.backend.Reserve(ctx)
		switch {
		case err != nil:
			if item != nil {
				l.discard(ctx, item)
			}
			if l.stopping(ctx) {
				res.Reason = StopCancelled
				break
			}
			res.Reason = StopFatal
			res.Err = fmt.Errorf("%w: %w", ErrReserve, err)
			slog.ErrorContext(ctx, "reserve failed", "queue", queueName, "error", err)
			l.notify(ctx, notify.SubjectReserve, err)

		case item == nil:
			res.Reason = StopExhausted

		default:
			l.metrics.observeReserved()
			out := l.process(ctx, queueName, item)
			res.Processed++
			if out.Kind == OutcomeTermination {
				res.Reason = StopTerminated
				res.Err = out.Err
			}
		}
	}

	slog.InfoContext(ctx, "worker stopped", "queue", queueName, "reason", res.Reason.String(), "processed", res.Processed)
	return res, res.Err
}

// process runs one job under a context detached from ctx's cancellation,
// so a shutdown never interrupts a handler midway.
func (l *Loop) process(ctx context.Context, queueName string, item queue.Item) Outcome {
	jobCtx := context.WithoutCancel(ctx)
	jobCtx = middleware.WithCorrelationID(jobCtx, uuid.New().String())
	jobCtx = middleware.WithJobID(jobCtx, item.ID())

	job := NewJob(item, queueName, l.decoder, l.notifier)

	start := time.Now()
	out := l.execute(jobCtx, job)
	l.metrics.observeExecution(out.Kind, time.Since(start))

	if out.Kind == OutcomeFailure {
		slog.WarnContext(jobCtx, "job handler failed", "queue", queueName, "error", out.Err)
	}
	l.disposer.Dispose(jobCtx, job, out)
	return out
}

func (l *Loop) execute(ctx context.Context, job *Job) (out Outcome) {
	msg, err := job.Message()
	if err != nil {
		return Outcome{Kind: OutcomeUnrecoverable, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Kind: OutcomeFailure, Err: fmt.Errorf("handler %s panicked: %v", msg.Handler, r)}
		}
	}()
	slog.DebugContext(ctx, "executing job", "message", msg.String())
	return Classify(msg.Execute(ctx))
}

// discard deletes an item that was reserved alongside a reserve error.
func (l *Loop) discard(ctx context.Context, item queue.Item) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic deleting partially reserved job", "panic", r)
		}
	}()
	if err := item.Delete(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to delete partially reserved job", "error", err)
	}
}

func (l *Loop) stopping(ctx context.Context) bool {
	return l.stop.Load() || ctx.Err() != nil
}

func (l *Loop) notify(ctx context.Context, subject string, cause error) {
	if l.notifier != nil {
		l.notifier.Deliver(context.WithoutCancel(ctx), subject, cause)
	}
}

// ExitCode extracts the exit code requested by a handler, if any.
func ExitCode(err error) (int, bool) {
	var term *TerminationError
	if errors.As(err, &term) {
		return term.Code, true
	}
	return 0, false
}
