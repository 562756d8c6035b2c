package mocks

import (
	"context"

	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/stretchr/testify/mock"
)

var _ artifact.Store = (*MockStore)(nil)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, key string) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockStore) Download(ctx context.Context, key string) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockStore) Scratch() *artifact.Scratch {
	args := m.Called()

	s, _ := args.Get(0).(*artifact.Scratch)

	return s
}
