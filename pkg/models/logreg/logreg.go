// Package logreg is a binary logistic regression model family trained with
// full batch gradient descent.
package logreg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/pkg/fl"
)

var (
	errNoModel = errors.New("model not created")
	errNoData  = errors.New("data not preprocessed")
)

const eps = 1e-12

type Config struct {
	DataPath     string  `env:"DATA_PATH"     envDefault:""`
	Features     int     `env:"FEATURES"      envDefault:"4"`
	Samples      int     `env:"SAMPLES"       envDefault:"200"`
	Seed         int64   `env:"SEED"          envDefault:"1"`
	LearningRate float64 `env:"LEARNING_RATE" envDefault:"0.1"`
	LocalEpochs  int     `env:"LOCAL_EPOCHS"  envDefault:"20"`
	TestSplit    float64 `env:"TEST_SPLIT"    envDefault:"0.2"`
}

func (c Config) Validate() error {
	switch {
	case c.Features < 1:
		return fmt.Errorf("features must be positive, got %d", c.Features)
	case c.DataPath == "" && c.Samples < 2:
		return fmt.Errorf("at least 2 synthetic samples are required, got %d", c.Samples)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	case c.LocalEpochs < 1:
		return fmt.Errorf("local epochs must be positive, got %d", c.LocalEpochs)
	case c.TestSplit < 0 || c.TestSplit >= 1:
		return fmt.Errorf("test split must be in [0, 1), got %v", c.TestSplit)
	}

	return nil
}

// InitParams returns the zero global state for a model over features inputs.
func InitParams(features int) fl.ParamSet {
	return fl.ParamSet{
		Weights: fl.NewArray(features),
		Bias:    fl.NewArray(1),
	}
}

type Model struct {
	weights []float64
	bias    float64
}

var _ client.Model = (*Model)(nil)

func (m *Model) SetWeights(p fl.ParamSet) error {
	if len(p.Weights.Shape) != 1 || p.Weights.Shape[0] != len(m.weights) || p.Weights.Len() != len(m.weights) {
		return fmt.Errorf("%w: weights %v, want [%d]", fl.ErrShapeMismatch, p.Weights.Shape, len(m.weights))
	}
	if p.Bias.Len() != 1 {
		return fmt.Errorf("%w: bias %v, want [1]", fl.ErrShapeMismatch, p.Bias.Shape)
	}
	copy(m.weights, p.Weights.Data)
	m.bias = p.Bias.Data[0]

	return nil
}

func (m *Model) predict(x []float64) float64 {
	z := m.bias
	for i, v := range x {
		z += m.weights[i] * v
	}

	return 1 / (1 + math.Exp(-z))
}

type Trainer struct {
	cfg Config

	mu    sync.Mutex
	model *Model
	train *dataset
	test  *dataset
}

var _ client.Trainer = (*Trainer)(nil)

func NewTrainer(cfg Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Trainer{cfg: cfg}, nil
}

func (t *Trainer) CreateModel(ctx context.Context) (client.Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.model = &Model{weights: make([]float64, t.cfg.Features)}

	return t.model, nil
}

// PreprocessData loads and standardizes the local data set once.
func (t *Trainer) PreprocessData(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.train != nil {
		return nil
	}

	var (
		ds  *dataset
		err error
	)
	switch t.cfg.DataPath {
	case "":
		ds = synthetic(t.cfg.Features, t.cfg.Samples, t.cfg.Seed)
	default:
		ds, err = loadCSV(t.cfg.DataPath, t.cfg.Features)
		if err != nil {
			return err
		}
	}

	train, test := ds.split(t.cfg.TestSplit, t.cfg.Seed)
	mean, std := train.stats()
	train.standardize(mean, std)
	test.standardize(mean, std)
	t.train, t.test = train, test

	return nil
}

func (t *Trainer) Fit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.model == nil:
		return errNoModel
	case t.train == nil:
		return errNoData
	}

	n := float64(len(t.train.x))
	gradW := make([]float64, t.cfg.Features)
	for range t.cfg.LocalEpochs {
		if err := ctx.Err(); err != nil {
			return err
		}
		clear(gradW)
		var gradB float64
		for i, x := range t.train.x {
			diff := t.model.predict(x) - t.train.y[i]
			for j, v := range x {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range gradW {
			t.model.weights[j] -= t.cfg.LearningRate * gradW[j] / n
		}
		t.model.bias -= t.cfg.LearningRate * gradB / n
	}

	return nil
}

// Evaluate scores the model on the held out split, or on the training split
// when no test split is configured. NumSamples is the training set size.
func (t *Trainer) Evaluate(ctx context.Context) (fl.Metrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.model == nil:
		return fl.Metrics{}, errNoModel
	case t.train == nil:
		return fl.Metrics{}, errNoData
	}

	eval := t.test
	if len(eval.x) == 0 {
		eval = t.train
	}

	var correct, loss float64
	for i, x := range eval.x {
		p := t.model.predict(x)
		y := eval.y[i]
		if (p >= 0.5) == (y == 1) {
			correct++
		}
		loss -= y*math.Log(p+eps) + (1-y)*math.Log(1-p+eps)
	}
	n := float64(len(eval.x))

	return fl.Metrics{
		Acc:        correct / n,
		Loss:       loss / n,
		NumSamples: len(t.train.x),
	}, nil
}

func (t *Trainer) GetParams(ctx context.Context) (fl.ParamSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return fl.ParamSet{}, errNoModel
	}
	p := InitParams(t.cfg.Features)
	copy(p.Weights.Data, t.model.weights)
	p.Bias.Data[0] = t.model.bias

	return p, nil
}
