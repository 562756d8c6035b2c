package mocks

import (
	"context"

	"github.com/absmach/fedasync/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

var _ mqtt.PubSub = (*MockPubSub)(nil)

type MockPubSub struct {
	mock.Mock
}

func (m *MockPubSub) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)

	return args.Error(0)
}

func (m *MockPubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)

	return args.Error(0)
}

func (m *MockPubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)

	return args.Error(0)
}

func (m *MockPubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
