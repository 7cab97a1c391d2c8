package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnrecoverable marks a job body that can never be executed, however
// often it is retried.
var ErrUnrecoverable = errors.New("unrecoverable message")

// TypeAyl is the only message type this worker executes.
const TypeAyl = "ayl"

type wireMessage struct {
	Type             string          `json:"type"`
	Handler          string          `json:"handler"`
	Args             json.RawMessage `json:"args,omitempty"`
	FailedJobHandler string          `json:"failed_job_handler,omitempty"`
	DecayThreshold   int             `json:"decay_threshold,omitempty"`
	DecayDelay       int             `json:"decay_delay,omitempty"`
	MaxAge           int             `json:"max_age,omitempty"`
	RetryMode        string          `json:"retry_mode,omitempty"`
}

// Codec converts job bodies to messages bound to registered handlers, and
// back.
type Codec struct {
	registry *Registry
	defaults Policy
}

func NewCodec(r *Registry, defaults Policy) *Codec {
	return &Codec{registry: r, defaults: defaults}
}

func (c *Codec) Decode(body []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	if w.Type != TypeAyl {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrUnrecoverable, w.Type)
	}
	if w.Handler == "" {
		return nil, fmt.Errorf("%w: missing handler", ErrUnrecoverable)
	}
	fn, ok := c.registry.Lookup(w.Handler)
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for %q", ErrUnrecoverable, w.Handler)
	}

	policy := Policy{
		OnFailure:      Action(w.FailedJobHandler),
		DecayThreshold: w.DecayThreshold,
		DecayDelay:     time.Duration(w.DecayDelay) * time.Second,
		MaxAge:         time.Duration(w.MaxAge) * time.Second,
		RetryMode:      RetryMode(w.RetryMode),
	}.Merge(c.defaults)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}

	return &Message{
		Handler: w.Handler,
		Args:    w.Args,
		Policy:  policy,
		fn:      fn,
	}, nil
}

func (c *Codec) Encode(m *Message) ([]byte, error) {
	if m.Handler == "" {
		return nil, errors.New("encode message: missing handler")
	}
	policy := m.Policy.Merge(c.defaults)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return json.Marshal(wireMessage{
		Type:             TypeAyl,
		Handler:          m.Handler,
		Args:             m.Args,
		FailedJobHandler: string(policy.OnFailure),
		DecayThreshold:   policy.DecayThreshold,
		DecayDelay:       int(policy.DecayDelay / time.Second),
		MaxAge:           int(policy.MaxAge / time.Second),
		RetryMode:        string(policy.RetryMode),
	})
}
