package app_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ayl/internal/queue"
)

type MockBackend struct{ mock.Mock }

func (m *MockBackend) Watch(ctx context.Context, q string) error { return m.Called(ctx, q).Error(0) }

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
