package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"ayl/internal/message"
	"ayl/internal/notify"
	"ayl/internal/queue"
	"ayl/internal/worker"
)

// Mocks

type MockItem struct{ mock.Mock }

func (m *MockItem) ID() string   { return m.Called().String(0) }
func (m *MockItem) Body() []byte { return m.Called().Get(0).([]byte) }

func (m *MockItem) Delete(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockItem) Decay(ctx context.Context, delay *time.Duration) error {
	return m.Called(ctx, delay).Error(0)
}

func (m *MockItem) Bury(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockItem) Age(ctx context.Context) (time.Duration, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockItem) Reservations(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newItem(id string, body string) *MockItem {
	it := &MockItem{}
	it.On("ID").Return(id).Maybe()
	it.On("Body").Return([]byte(body)).Maybe()
	return it
}

type MockBackend struct{ mock.Mock }

func (m *MockBackend) Watch(ctx context.Context, q string) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockBackend) Reserve(ctx context.Context) (queue.Item, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(queue.Item), args.Error(1)
}

func (m *MockBackend) Put(ctx context.Context, q string, body []byte, opts queue.PutOptions) (string, error) {
	args := m.Called(ctx, q, body, opts)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Revive(ctx context.Context, q, id string, body []byte) error {
	return m.Called(ctx, q, id, body).Error(0)
}

func (m *MockBackend) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockBackend) Close() error                   { return m.Called().Error(0) }

type MockDecoder struct{ mock.Mock }

func (m *MockDecoder) Decode(raw []byte) (*message.Message, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*message.Message), args.Error(1)
}

type MockRecorder struct{ mock.Mock }

func (m *MockRecorder) Record(ctx context.Context, b worker.Burial) error {
	return m.Called(ctx, b).Error(0)
}

// recordingNotifier keeps every delivered alert.
type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	causes   []error
}

func (n *recordingNotifier) Deliver(ctx context.Context, subject string, cause error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.causes = append(n.causes, cause)
}

func (n *recordingNotifier) Subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.subjects...)
}

var _ notify.Notifier = (*recordingNotifier)(nil)

// newCodec registers a single "task" handler that returns whatever fn
// returns.
func newCodec(fn func(args json.RawMessage) error) *message.Codec {
	r := message.NewRegistry()
	r.Register("task", func(ctx context.Context, args json.RawMessage) error {
		return fn(args)
	})
	return message.NewCodec(r, message.DefaultPolicy())
}

func body(policy string) string {
	if policy == "" {
		return `{"type":"ayl","handler":"task","args":{}}`
	}
	return `{"type":"ayl","handler":"task","args":{},` + policy + `}`
}

func durationPtr(d time.Duration) *time.Duration { return &d }

// newRegistryCodec is newCodec for handlers that need the job context.
func newRegistryCodec(fn func(ctx context.Context) error) *message.Codec {
	r := message.NewRegistry()
	r.Register("task", func(ctx context.Context, _ json.RawMessage) error {
		return fn(ctx)
	})
	return message.NewCodec(r, message.DefaultPolicy())
}
