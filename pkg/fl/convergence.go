package fl

import (
	"fmt"
	"math"
)

const (
	LossDelta = "loss-delta"
	Accuracy  = "accuracy"
)

// ConvergenceCheck decides after each aggregation whether the run may stop
// early. prev is nil for the first aggregated round.
type ConvergenceCheck func(prev *Metrics, cur Metrics) bool

// NewConvergenceCheck returns a check for the named criterion. A zero
// threshold disables early stopping.
func NewConvergenceCheck(name string, threshold float64) (ConvergenceCheck, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("negative convergent value %v", threshold)
	}
	if threshold == 0 {
		return func(*Metrics, Metrics) bool { return false }, nil
	}

	switch name {
	case LossDelta, "":
		return func(prev *Metrics, cur Metrics) bool {
			if prev == nil {
				return false
			}

			return math.Abs(prev.Loss-cur.Loss) < threshold
		}, nil
	case Accuracy:
		return func(_ *Metrics, cur Metrics) bool {
			return cur.Acc >= 1-threshold
		}, nil
	default:
		return nil, fmt.Errorf("unknown convergence criterion %q", name)
	}
}
