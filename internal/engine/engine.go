// Package engine submits messages to the queue backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ayl/internal/message"
	"ayl/internal/notify"
	"ayl/internal/queue"
)

var ErrNoQueue = errors.New("no queue named for message")

type Encoder interface {
	Encode(m *message.Message) ([]byte, error)
}

type Engine struct {
	backend  queue.Backend
	encoder  Encoder
	notifier notify.Notifier
	defaults message.Options
}

func New(backend queue.Backend, encoder Encoder, notifier notify.Notifier, defaults message.Options) *Engine {
	return &Engine{backend: backend, encoder: encoder, notifier: notifier, defaults: defaults}
}

// Submit enqueues m and returns the backend's id for it. Zero scheduling
// options are filled from the engine defaults.
func (e *Engine) Submit(ctx context.Context, m *message.Message) (string, error) {
	id, err := e.submit(ctx, m)
	if err != nil {
		slog.ErrorContext(ctx, "failed to submit message", "handler", m.Handler, "error", err)
		if e.notifier != nil {
			e.notifier.Deliver(ctx, notify.SubjectSubmit, err)
		}
		return "", err
	}
	slog.InfoContext(ctx, "message submitted", "handler", m.Handler, "queue", m.Options.Merge(e.defaults).Queue, "job_id", id)
	return id, nil
}

func (e *Engine) submit(ctx context.Context, m *message.Message) (string, error) {
	opts := m.Options.Merge(e.defaults)
	if opts.Queue == "" {
		return "", ErrNoQueue
	}

	body, err := e.encoder.Encode(m)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", m.Handler, err)
	}

	id, err := e.backend.Put(ctx, opts.Queue, body, queue.PutOptions{
		Priority:  opts.Priority,
		Delay:     opts.Delay,
		TimeToRun: opts.TimeToRun,
	})
	if err != nil {
		return "", fmt.Errorf("submit %s to %s: %w", m.Handler, opts.Queue, err)
	}
	return id, nil
}

// IsConnected reports whether the backend answers a ping.
func (e *Engine) IsConnected(ctx context.Context) bool {
	if err := e.backend.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "queue backend unreachable", "error", err)
		return false
	}
	return true
}

// Asynchronous is always true: submitted messages run in a separate
// worker process.
func (e *Engine) Asynchronous() bool { return true }
