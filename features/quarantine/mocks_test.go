package quarantine_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ayl/features/quarantine"
)

// MockRepo implements quarantine.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, e *quarantine.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context) ([]quarantine.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]quarantine.Entry), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*quarantine.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quarantine.Entry), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockReviver struct {
	mock.Mock
}

func (m *MockReviver) Revive(ctx context.Context, queue, id string, body []byte) error {
	args := m.Called(ctx, queue, id, body)
	return args.Error(0)
}
