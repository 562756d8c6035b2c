package sqlite

import (
	"encoding/json"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
)

type dbRound struct {
	RunID        string    `db:"run_id"`
	Epoch        int       `db:"epoch"`
	Chosen       []byte    `db:"chosen"`
	Contributors []byte    `db:"contributors"`
	Lagging      []byte    `db:"lagging"`
	WeightFile   string    `db:"weight_file"`
	BiasFile     string    `db:"bias_file"`
	Acc          float64   `db:"acc"`
	Loss         float64   `db:"loss"`
	NumSamples   int       `db:"num_samples"`
	Degraded     bool      `db:"degraded"`
	Converged    bool      `db:"converged"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
}

func toDBRound(r fl.Round) (dbRound, error) {
	chosen, err := jsonBytes(r.Chosen)
	if err != nil {
		return dbRound{}, err
	}
	contributors, err := jsonBytes(r.Contributors)
	if err != nil {
		return dbRound{}, err
	}
	lagging, err := jsonBytes(r.Lagging)
	if err != nil {
		return dbRound{}, err
	}

	return dbRound{
		RunID:        r.RunID,
		Epoch:        r.Epoch,
		Chosen:       chosen,
		Contributors: contributors,
		Lagging:      lagging,
		WeightFile:   r.WeightFile,
		BiasFile:     r.BiasFile,
		Acc:          r.Metrics.Acc,
		Loss:         r.Metrics.Loss,
		NumSamples:   r.Metrics.NumSamples,
		Degraded:     r.Degraded,
		Converged:    r.Converged,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt.UTC(),
	}, nil
}

func (d dbRound) toRound() (fl.Round, error) {
	r := fl.Round{
		RunID:      d.RunID,
		Epoch:      d.Epoch,
		WeightFile: d.WeightFile,
		BiasFile:   d.BiasFile,
		Metrics: fl.Metrics{
			Acc:        d.Acc,
			Loss:       d.Loss,
			NumSamples: d.NumSamples,
		},
		Degraded:   d.Degraded,
		Converged:  d.Converged,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
	}
	if err := jsonUnmarshal(d.Chosen, &r.Chosen); err != nil {
		return fl.Round{}, err
	}
	if err := jsonUnmarshal(d.Contributors, &r.Contributors); err != nil {
		return fl.Round{}, err
	}
	if err := jsonUnmarshal(d.Lagging, &r.Lagging); err != nil {
		return fl.Round{}, err
	}

	return r, nil
}

func jsonBytes(v []string) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}
