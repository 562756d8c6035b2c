package client

import (
	"context"

	"github.com/absmach/fedasync/pkg/fl"
)

// Model is the locally trained model instance of one round.
type Model interface {
	SetWeights(p fl.ParamSet) error
}

// Trainer is supplied by a model family. The agent calls CreateModel,
// SetWeights, PreprocessData, Fit, Evaluate and GetParams in that order once
// per round and never inspects the model itself.
type Trainer interface {
	CreateModel(ctx context.Context) (Model, error)
	PreprocessData(ctx context.Context) error
	Fit(ctx context.Context) error
	Evaluate(ctx context.Context) (fl.Metrics, error)
	GetParams(ctx context.Context) (fl.ParamSet, error)
}
