package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// HandlerFunc is the executable part of a message.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// Options are scheduling hints used when the message is submitted. The
// worker ignores them while consuming.
type Options struct {
	Queue     string
	Priority  uint32
	Delay     time.Duration
	TimeToRun time.Duration
}

// Merge fills every zero field of o from def.
func (o Options) Merge(def Options) Options {
	if o.Queue == "" {
		o.Queue = def.Queue
	}
	if o.Priority == 0 {
		o.Priority = def.Priority
	}
	if o.Delay == 0 {
		o.Delay = def.Delay
	}
	if o.TimeToRun == 0 {
		o.TimeToRun = def.TimeToRun
	}
	return o
}

type Message struct {
	Handler string
	Args    json.RawMessage
	Policy  Policy
	Options Options

	fn HandlerFunc
}

func New(handler string, args json.RawMessage) *Message {
	return &Message{Handler: handler, Args: args}
}

// Execute runs the bound handler. Messages built with New are not bound
// until they pass through a Codec.
func (m *Message) Execute(ctx context.Context) error {
	if m.fn == nil {
		return fmt.Errorf("%w: handler %q is not bound", ErrUnrecoverable, m.Handler)
	}
	return m.fn(ctx, m.Args)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(%s)", m.Handler, string(m.Args))
}
