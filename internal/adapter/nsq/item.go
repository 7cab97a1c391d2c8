package nsq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
)

var errResponded = errors.New("nsq message already responded")

type item struct {
	msg       *nsq.Message
	publisher Publisher
	topic     string
}

func newItem(m *nsq.Message, p Publisher, topic string) *item {
	return &item{msg: m, publisher: p, topic: topic}
}

func (i *item) ID() string   { return string(i.msg.ID[:]) }
func (i *item) Body() []byte { return i.msg.Body }

func (i *item) Delete(ctx context.Context) error {
	if i.msg.HasResponded() {
		return errResponded
	}
	i.msg.Finish()
	return nil
}

// Decay with a nil delay lets nsqd apply its attempt-scaled backoff.
func (i *item) Decay(ctx context.Context, delay *time.Duration) error {
	if i.msg.HasResponded() {
		return errResponded
	}
	if delay == nil {
		i.msg.Requeue(-1)
		return nil
	}
	i.msg.RequeueWithoutBackoff(*delay)
	return nil
}

// Bury publishes the body to the buried topic and finishes the original.
func (i *item) Bury(ctx context.Context) error {
	if i.msg.HasResponded() {
		return errResponded
	}
	if err := i.publisher.Publish(BuriedTopic(i.topic), i.msg.Body); err != nil {
		return fmt.Errorf("nsq bury: %w", err)
	}
	i.msg.Finish()
	return nil
}

func (i *item) Age(ctx context.Context) (time.Duration, error) {
	return time.Since(time.Unix(0, i.msg.Timestamp)), nil
}

func (i *item) Reservations(ctx context.Context) (int, error) {
	return int(i.msg.Attempts), nil
}
