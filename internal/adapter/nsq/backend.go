package nsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"

	"ayl/internal/config"
	"ayl/internal/queue"
)

// Publisher is the subset of *nsq.Producer the backend uses.
type Publisher interface {
	Publish(topic string, body []byte) error
	DeferredPublish(topic string, delay time.Duration, body []byte) error
	Ping() error
	Stop()
}

type Options struct {
	NSQDHost   string
	NSQLookupd string
	Channel    string
	// DrainAfter, when positive, makes Reserve report exhaustion after
	// waiting that long without a message.
	DrainAfter time.Duration
}

// Backend adapts NSQ's push-based consumer to reserve semantics: with
// MaxInFlight=1 and auto-response disabled, the handler parks each message
// until the worker reserves it.
type Backend struct {
	opts     Options
	producer Publisher
	consumer *nsq.Consumer
	topic    string

	deliveries chan *nsq.Message
	done       chan struct{}
	closeOnce  sync.Once
}

var _ queue.Backend = (*Backend)(nil)

func New(producer Publisher, opts Options) *Backend {
	return &Backend{
		opts:       opts,
		producer:   producer,
		deliveries: make(chan *nsq.Message),
		done:       make(chan struct{}),
	}
}

// Dial creates the producer used for publishing and burying.
func Dial(opts Options) (*Backend, error) {
	producer, err := nsq.NewProducer(opts.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	return New(producer, opts), nil
}

func (b *Backend) Watch(ctx context.Context, topic string) error {
	if b.consumer != nil {
		return errors.New("nsq watch: already consuming")
	}
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(topic, b.opts.Channel, cfg)
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(nsq.HandlerFunc(b.handle))

	if b.opts.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(b.opts.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(b.opts.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("nsq connect: %w", err)
	}
	b.consumer = consumer
	b.topic = topic
	return nil
}

func (b *Backend) handle(m *nsq.Message) error {
	m.DisableAutoResponse()
	select {
	case b.deliveries <- m:
	case <-b.done:
		m.RequeueWithoutBackoff(0)
	}
	return nil
}

func (b *Backend) Reserve(ctx context.Context) (queue.Item, error) {
	if b.consumer == nil {
		return nil, errors.New("nsq reserve: no topic watched")
	}
	var drain <-chan time.Time
	if b.opts.DrainAfter > 0 {
		timer := time.NewTimer(b.opts.DrainAfter)
		defer timer.Stop()
		drain = timer.C
	}

	select {
	case m := <-b.deliveries:
		return newItem(m, b.producer, b.topic), nil
	case <-drain:
		return nil, nil
	case <-b.consumer.StopChan:
		return nil, queue.ErrClosed
	case <-b.done:
		return nil, queue.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Backend) Put(ctx context.Context, topic string, body []byte, opts queue.PutOptions) (string, error) {
	var err error
	if opts.Delay > 0 {
		err = b.producer.DeferredPublish(topic, opts.Delay, body)
	} else {
		err = b.producer.Publish(topic, body)
	}
	if err != nil {
		return "", fmt.Errorf("nsq publish %s: %w", topic, err)
	}
	// nsqd does not return message ids to producers.
	return "", nil
}

// Revive republishes the body; the copy on the buried topic stays for audit.
func (b *Backend) Revive(ctx context.Context, topic, id string, body []byte) error {
	if err := b.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("nsq revive %s: %w", id, err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.producer.Ping()
}

func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		if b.consumer != nil {
			b.consumer.Stop()
			select {
			case <-b.consumer.StopChan:
			case <-time.After(5 * time.Second):
				slog.Warn("nsq consumer did not stop in time")
			}
		}
		b.producer.Stop()
	})
	return nil
}

// BuriedTopic is where buried messages of topic are published.
func BuriedTopic(topic string) string {
	return topic + config.BuriedSuffix
}
