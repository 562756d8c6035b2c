package fl_test

import (
	"testing"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvergenceCheck(t *testing.T) {
	prev := &fl.Metrics{Loss: 0.50, Acc: 0.7}

	cases := []struct {
		desc      string
		name      string
		threshold float64
		prev      *fl.Metrics
		cur       fl.Metrics
		converged bool
	}{
		{desc: "loss delta below threshold", name: fl.LossDelta, threshold: 0.1, prev: prev, cur: fl.Metrics{Loss: 0.45}, converged: true},
		{desc: "loss delta above threshold", name: fl.LossDelta, threshold: 0.1, prev: prev, cur: fl.Metrics{Loss: 0.30}},
		{desc: "loss increase counts as delta", name: fl.LossDelta, threshold: 0.1, prev: prev, cur: fl.Metrics{Loss: 0.55}, converged: true},
		{desc: "first round never converges", name: fl.LossDelta, threshold: 0.1, cur: fl.Metrics{Loss: 0.45}},
		{desc: "zero threshold disables", name: fl.LossDelta, threshold: 0, prev: prev, cur: fl.Metrics{Loss: 0.50}},
		{desc: "accuracy reached", name: fl.Accuracy, threshold: 0.1, cur: fl.Metrics{Acc: 0.95}, converged: true},
		{desc: "accuracy not reached", name: fl.Accuracy, threshold: 0.1, cur: fl.Metrics{Acc: 0.85}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			check, err := fl.NewConvergenceCheck(tc.name, tc.threshold)
			require.NoError(t, err)
			assert.Equal(t, tc.converged, check(tc.prev, tc.cur))
		})
	}
}

func TestConvergenceCheckInvalid(t *testing.T) {
	_, err := fl.NewConvergenceCheck(fl.LossDelta, -1)
	assert.Error(t, err)
	_, err = fl.NewConvergenceCheck("variance", 0.1)
	assert.Error(t, err)
}
