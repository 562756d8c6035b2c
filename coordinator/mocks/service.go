package mocks

import (
	"context"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface.
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)

	return args.Error(0)
}

func (m *MockService) HandleUpdate(ctx context.Context, update fl.ClientUpdateMessage) error {
	args := m.Called(ctx, update)

	return args.Error(0)
}

func (m *MockService) Tick(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) Resume(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.Status), args.Error(1)
}

func (m *MockService) ListClients(ctx context.Context, offset, limit uint64) (coordinator.ClientPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(coordinator.ClientPage), args.Error(1)
}

func (m *MockService) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(coordinator.RoundPage), args.Error(1)
}
