package cli_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/fedasync/cli"
	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/api"
	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/absmach/fedasync/pkg/sdk"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(root *cobra.Command, args ...string) (string, string) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	_ = root.Execute()

	return out.String(), errOut.String()
}

func newRunRoot(t *testing.T) *cobra.Command {
	scratch, err := artifact.NewScratch(t.TempDir())
	require.NoError(t, err)
	store, err := artifact.NewFS(t.TempDir(), scratch)
	require.NoError(t, err)

	svc, err := coordinator.NewService(
		coordinator.Config{
			RunID:            "run",
			NEpochs:          3,
			MinFitClients:    1,
			MinUpdateClients: 1,
			Convergence:      fl.LossDelta,
			RoundTimeout:     time.Hour,
			DegradedPolicy:   coordinator.AggregatePolicy,
			Selection:        scheduler.All,
			Aggregation:      fl.FedAvg,
			Features:         2,
			Seed:             1,
		},
		channel.NewBroker(16).Channel(),
		store,
		storage.NewMemoryClientRepository(),
		storage.NewMemoryRoundRepository(),
		scheduler.NewAll(),
		fl.NewFedAvgAggregator(),
		fl.ParamSet{Weights: fl.NewArray(2), Bias: fl.NewArray(1)},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), "edge-1"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "instance"))
	t.Cleanup(ts.Close)
	cli.SetSDK(sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL, Timeout: 5 * time.Second}))

	root := &cobra.Command{Use: "fedasync-cli"}
	root.AddCommand(cli.NewRunCmds()...)

	return root
}

func TestRunCmds(t *testing.T) {
	cases := []struct {
		desc   string
		args   []string
		out    []string
		errOut string
	}{
		{
			desc: "status",
			args: []string{"status"},
			out:  []string{`"phase"`, `"training"`, `"edge-1"`},
		},
		{
			desc: "clients",
			args: []string{"clients", "--limit", "5"},
			out:  []string{`"clients"`, `"edge-1"`, `"total"`},
		},
		{
			desc: "rounds",
			args: []string{"rounds"},
			out:  []string{`"total"`},
		},
		{
			desc:   "rejected limit",
			args:   []string{"clients", "--limit", "1000"},
			errOut: "error",
		},
		{
			desc: "unexpected argument",
			args: []string{"status", "extra"},
			out:  []string{"usage: status"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			out, errOut := execute(newRunRoot(t), tc.args...)
			for _, want := range tc.out {
				assert.Contains(t, out, want)
			}
			if tc.errOut != "" {
				assert.Contains(t, errOut, tc.errOut)
			}
		})
	}
}

func TestSimulateCmd(t *testing.T) {
	t.Setenv("SIM_RUN_N_EPOCHS", "3")
	t.Setenv("SIM_RUN_FEATURES", "2")
	t.Setenv("SIM_MODEL_SAMPLES", "60")
	t.Setenv("SIM_MODEL_LOCAL_EPOCHS", "3")

	root := &cobra.Command{Use: "fedasyncd"}
	root.AddCommand(cli.NewSimulateCmd())

	out, errOut := execute(root, "simulate", "--clients", "2", "--poll-interval", "5ms", "--timeout", "30s")
	assert.Empty(t, errOut)
	assert.Contains(t, out, `"finished"`)
	assert.Contains(t, out, `"rounds"`)
	assert.Contains(t, out, `"client-1"`)
}

func TestSimulateCmdInvalidRun(t *testing.T) {
	t.Setenv("SIM_RUN_DEGRADED_POLICY", "wait")

	root := &cobra.Command{Use: "fedasyncd"}
	root.AddCommand(cli.NewSimulateCmd())

	_, errOut := execute(root, "simulate")
	assert.Contains(t, errOut, "error")
}
