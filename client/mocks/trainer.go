package mocks

import (
	"context"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var (
	_ client.Trainer = (*MockTrainer)(nil)
	_ client.Model   = (*MockModel)(nil)
)

type MockTrainer struct {
	mock.Mock
}

func (m *MockTrainer) CreateModel(ctx context.Context) (client.Model, error) {
	args := m.Called(ctx)

	model, _ := args.Get(0).(client.Model)

	return model, args.Error(1)
}

func (m *MockTrainer) PreprocessData(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockTrainer) Fit(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockTrainer) Evaluate(ctx context.Context) (fl.Metrics, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.Metrics), args.Error(1)
}

func (m *MockTrainer) GetParams(ctx context.Context) (fl.ParamSet, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.ParamSet), args.Error(1)
}

type MockModel struct {
	mock.Mock
}

func (m *MockModel) SetWeights(p fl.ParamSet) error {
	args := m.Called(p)

	return args.Error(0)
}
