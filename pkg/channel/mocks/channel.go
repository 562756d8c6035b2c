package mocks

import (
	"context"

	"github.com/absmach/fedasync/pkg/channel"
	"github.com/stretchr/testify/mock"
)

var _ channel.Channel = (*MockChannel)(nil)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(ctx context.Context, key string, payload []byte) error {
	args := m.Called(ctx, key, payload)

	return args.Error(0)
}

func (m *MockChannel) Poll(ctx context.Context, queue string) ([]byte, error) {
	args := m.Called(ctx, queue)

	var payload []byte
	if p := args.Get(0); p != nil {
		payload = p.([]byte)
	}

	return payload, args.Error(1)
}

func (m *MockChannel) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
