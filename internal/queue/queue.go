// Package queue defines the contract between the worker and a job broker.
//
// A broker hands out one reserved Item at a time; mutual exclusion between
// workers is entirely the broker's business.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Reserve once the backend has been closed.
var ErrClosed = errors.New("queue backend closed")

// Item is a reserved job.
type Item interface {
	ID() string
	Body() []byte

	Delete(ctx context.Context) error
	// Decay releases the item back to its queue after delay. A nil delay
	// selects the backend's default.
	Decay(ctx context.Context, delay *time.Duration) error
	Bury(ctx context.Context) error

	// Age is the time since the item was first enqueued.
	Age(ctx context.Context) (time.Duration, error)
	// Reservations counts every successful reservation, this one included.
	Reservations(ctx context.Context) (int, error)
}

type PutOptions struct {
	Priority  uint32
	Delay     time.Duration
	TimeToRun time.Duration
}

// Backend is a connection to a broker. A Backend is owned by a single
// consumer and is not safe for concurrent reservations.
type Backend interface {
	Watch(ctx context.Context, queue string) error
	// Reserve blocks until an item is available. A nil item with a nil
	// error means the queue is exhausted (drain mode).
	Reserve(ctx context.Context) (Item, error)

	Put(ctx context.Context, queue string, body []byte, opts PutOptions) (string, error)
	// Revive returns a quarantined job to its queue.
	Revive(ctx context.Context, queue, id string, body []byte) error

	Ping(ctx context.Context) error
	Close() error
}
