package fl

import (
	"context"
	"fmt"
)

// Aggregator combines the admitted updates of one round into a new global state.
type Aggregator interface {
	Aggregate(ctx context.Context, updates []Update) (Result, error)
}

const (
	FedAvg = "fedavg"
	Mean   = "mean"
	Wasm   = "wasm"
)

type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

// Aggregate averages parameters and metrics weighted by NumSamples. When no
// update reports samples every update weighs the same.
func (f *FedAvgAggregator) Aggregate(ctx context.Context, updates []Update) (Result, error) {
	if err := checkUpdates(updates); err != nil {
		return Result{}, err
	}

	var totalSamples int
	for _, u := range updates {
		totalSamples += u.Metrics.NumSamples
	}

	weights := make([]float64, len(updates))
	for i, u := range updates {
		switch totalSamples {
		case 0:
			weights[i] = 1 / float64(len(updates))
		default:
			weights[i] = float64(u.Metrics.NumSamples) / float64(totalSamples)
		}
	}

	res := weightedSum(updates, weights)
	res.Metrics.NumSamples = totalSamples

	return res, ctx.Err()
}

type MeanAggregator struct{}

func NewMeanAggregator() Aggregator {
	return &MeanAggregator{}
}

func (m *MeanAggregator) Aggregate(ctx context.Context, updates []Update) (Result, error) {
	if err := checkUpdates(updates); err != nil {
		return Result{}, err
	}

	weights := make([]float64, len(updates))
	var totalSamples int
	for i, u := range updates {
		weights[i] = 1 / float64(len(updates))
		totalSamples += u.Metrics.NumSamples
	}

	res := weightedSum(updates, weights)
	res.Metrics.NumSamples = totalSamples

	return res, ctx.Err()
}

func checkUpdates(updates []Update) error {
	if len(updates) == 0 {
		return ErrNoUpdates
	}
	ref := updates[0].Params
	for _, u := range updates[1:] {
		if !ref.SameShape(u.Params) {
			return fmt.Errorf("%w: update from %s", ErrShapeMismatch, u.ClientID)
		}
	}

	return nil
}

func weightedSum(updates []Update, weights []float64) Result {
	ref := updates[0].Params
	out := ParamSet{
		Weights: NewArray(ref.Weights.Shape...),
		Bias:    NewArray(ref.Bias.Shape...),
	}
	out.Weights.Data = make([]float64, ref.Weights.Len())
	out.Bias.Data = make([]float64, ref.Bias.Len())

	var metrics Metrics
	for i, u := range updates {
		w := weights[i]
		for j, v := range u.Params.Weights.Data {
			out.Weights.Data[j] += v * w
		}
		for j, v := range u.Params.Bias.Data {
			out.Bias.Data[j] += v * w
		}
		metrics.Acc += u.Metrics.Acc * w
		metrics.Loss += u.Metrics.Loss * w
	}

	return Result{Params: out, Metrics: metrics}
}

// NewAggregator resolves an aggregation strategy by name.
func NewAggregator(name, wasmPath string) (Aggregator, error) {
	switch name {
	case FedAvg, "":
		return NewFedAvgAggregator(), nil
	case Mean:
		return NewMeanAggregator(), nil
	case Wasm:
		return NewWasmAggregator(wasmPath)
	default:
		return nil, fmt.Errorf("unknown aggregation strategy %q", name)
	}
}
