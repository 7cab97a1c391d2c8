package beanstalk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/beanstalkd/go-beanstalk"

	"ayl/internal/queue"
)

const (
	// DefaultReserveWindow bounds a single reserve-with-timeout so that
	// cancellation is noticed between windows.
	DefaultReserveWindow = 5 * time.Second

	dialTimeout = 5 * time.Second
)

// conn is the subset of *beanstalk.Conn the backend relies on.
type conn interface {
	Delete(id uint64) error
	Release(id uint64, pri uint32, delay time.Duration) error
	Bury(id uint64, pri uint32) error
	KickJob(id uint64) error
	StatsJob(id uint64) (map[string]string, error)
	ListTubes() ([]string, error)
	Close() error
}

type Option func(*Backend)

// WithReserveWindow sets how long one reserve command waits on the server.
func WithReserveWindow(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithDrain makes Reserve report exhaustion once a full window passes
// without a job.
func WithDrain(drain bool) Option {
	return func(b *Backend) { b.drain = drain }
}

type Backend struct {
	raw    *beanstalk.Conn
	conn   conn
	tubes  *beanstalk.TubeSet
	window time.Duration
	drain  bool
}

var _ queue.Backend = (*Backend)(nil)

func Dial(addr string, opts ...Option) (*Backend, error) {
	c, err := beanstalk.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("beanstalk dial %s: %w", addr, err)
	}
	b := &Backend{raw: c, conn: c, window: DefaultReserveWindow}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Watch replaces the watched tube list with queue. The server is told
// lazily, on the next reserve.
func (b *Backend) Watch(ctx context.Context, name string) error {
	b.tubes = beanstalk.NewTubeSet(b.raw, name)
	return b.Ping(ctx)
}

func (b *Backend) Reserve(ctx context.Context) (queue.Item, error) {
	if b.tubes == nil {
		return nil, errors.New("beanstalk reserve: no tube watched")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, body, err := b.tubes.Reserve(b.window)
		switch {
		case err == nil:
			return &item{conn: b.conn, id: id, body: body}, nil
		case isConnErr(err, beanstalk.ErrTimeout):
			if b.drain {
				return nil, nil
			}
		case isConnErr(err, beanstalk.ErrDeadline):
			slog.Warn("beanstalk reserve: deadline soon, retrying")
		default:
			return nil, fmt.Errorf("beanstalk reserve: %w", err)
		}
	}
}

func (b *Backend) Put(ctx context.Context, name string, body []byte, opts queue.PutOptions) (string, error) {
	tube := &beanstalk.Tube{Conn: b.raw, Name: name}
	id, err := tube.Put(body, opts.Priority, opts.Delay, opts.TimeToRun)
	if err != nil {
		return "", fmt.Errorf("beanstalk put %s: %w", name, err)
	}
	return strconv.FormatUint(id, 10), nil
}

// Revive kicks a buried job. If the server no longer knows it, the body
// is enqueued again as a fresh job.
func (b *Backend) Revive(ctx context.Context, name, id string, body []byte) error {
	jobID, err := strconv.ParseUint(id, 10, 64)
	if err == nil {
		err = b.conn.KickJob(jobID)
		if err == nil {
			return nil
		}
		if !isConnErr(err, beanstalk.ErrNotFound) {
			return fmt.Errorf("beanstalk kick %s: %w", id, err)
		}
	}
	_, err = b.Put(ctx, name, body, queue.PutOptions{Priority: DefaultPriority, TimeToRun: DefaultTTR})
	return err
}

func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.conn.ListTubes(); err != nil {
		return fmt.Errorf("beanstalk ping: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.conn.Close()
}

func isConnErr(err, target error) bool {
	if errors.Is(err, target) {
		return true
	}
	var cerr beanstalk.ConnError
	return errors.As(err, &cerr) && cerr.Err == target
}
