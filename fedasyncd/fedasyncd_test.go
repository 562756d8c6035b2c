package fedasyncd_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/fedasyncd"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConfig() coordinator.Config {
	return coordinator.Config{
		RunID:            "sim",
		NEpochs:          4,
		MinFitClients:    3,
		MinUpdateClients: 3,
		Convergence:      fl.LossDelta,
		RoundTimeout:     time.Minute,
		DegradedPolicy:   coordinator.AggregatePolicy,
		Selection:        scheduler.All,
		Aggregation:      fl.FedAvg,
		Seed:             1,
		Features:         3,
	}
}

func modelConfig() logreg.Config {
	return logreg.Config{
		Features:     3,
		Samples:      100,
		Seed:         7,
		LearningRate: 0.3,
		LocalEpochs:  5,
		TestSplit:    0.2,
	}
}

func TestSimulate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cases := []struct {
		desc   string
		mutate func(*coordinator.Config)
		rounds int
	}{
		{
			desc:   "fedavg over every client",
			rounds: 3,
		},
		{
			desc: "mean over a random sample",
			mutate: func(c *coordinator.Config) {
				c.Aggregation = fl.Mean
				c.Selection = scheduler.Random
				c.SampleSize = 2
				c.MinUpdateClients = 2
			},
			rounds: 3,
		},
		{
			desc: "single epoch run",
			mutate: func(c *coordinator.Config) {
				c.NEpochs = 1
			},
			rounds: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			run := runConfig()
			if tc.mutate != nil {
				tc.mutate(&run)
			}
			root := t.TempDir()

			res, err := fedasyncd.Simulate(ctx, fedasyncd.SimulateConfig{
				Clients:      3,
				Run:          run,
				Model:        modelConfig(),
				PollInterval: 5 * time.Millisecond,
				ArtifactRoot: root,
				Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			require.NoError(t, err)

			assert.Equal(t, coordinator.Finished, res.Status.Phase)
			assert.Equal(t, run.NEpochs, res.Status.CurrentEpoch)
			assert.Len(t, res.Rounds, tc.rounds)
			require.Len(t, res.Clients, 3)
			for _, c := range res.Clients {
				assert.Equal(t, client.Terminated, c.State)
			}
			for i, r := range res.Rounds {
				assert.Equal(t, i+1, r.Epoch)
				assert.FileExists(t, filepath.Join(root, r.WeightFile))
				assert.FileExists(t, filepath.Join(root, r.BiasFile))
			}
		})
	}
}

func TestSimulateInvalid(t *testing.T) {
	cases := []struct {
		desc   string
		mutate func(*fedasyncd.SimulateConfig)
	}{
		{
			desc:   "no clients",
			mutate: func(c *fedasyncd.SimulateConfig) { c.Clients = 0 },
		},
		{
			desc:   "unknown selection",
			mutate: func(c *fedasyncd.SimulateConfig) { c.Run.Selection = "nearest" },
		},
		{
			desc:   "invalid model",
			mutate: func(c *fedasyncd.SimulateConfig) { c.Model.LearningRate = 0 },
		},
		{
			desc:   "invalid run",
			mutate: func(c *fedasyncd.SimulateConfig) { c.Run.MinFitClients = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := fedasyncd.SimulateConfig{
				Clients:      2,
				Run:          runConfig(),
				Model:        modelConfig(),
				ArtifactRoot: t.TempDir(),
				Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			tc.mutate(&cfg)

			_, err := fedasyncd.Simulate(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestLoadCoordinatorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte("n_epochs = 6\nmin_fit_clients = 4\n"), 0o600))

	t.Setenv("COORDINATOR_LOG_LEVEL", "debug")
	t.Setenv("COORDINATOR_CHANNEL_TYPE", "redis")
	t.Setenv("COORDINATOR_STORAGE_TYPE", "sqlite")
	t.Setenv("COORDINATOR_RUN_MIN_FIT_CLIENTS", "5")
	t.Setenv("COORDINATOR_HTTP_PORT", "9090")

	cfg, srv, run, err := fedasyncd.LoadCoordinatorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, path, cfg.RunFile)
	assert.Equal(t, channel.Redis, cfg.Channel.Type)
	assert.Equal(t, storage.SQLite, cfg.Storage.Type)
	assert.Equal(t, "9090", srv.Port)
	assert.Equal(t, 6, run.NEpochs)
	assert.Equal(t, 5, run.MinFitClients)
}

func TestLoadCoordinatorConfigDefaults(t *testing.T) {
	cfg, srv, run, err := fedasyncd.LoadCoordinatorConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, channel.MQTT, cfg.Channel.Type)
	assert.Equal(t, storage.Memory, cfg.Storage.Type)
	assert.Equal(t, "7070", srv.Port)
	assert.Equal(t, 10, run.NEpochs)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CLIENT_ID", "edge-1")
	t.Setenv("CLIENT_POLL_INTERVAL", "250ms")
	t.Setenv("CLIENT_MODEL_FEATURES", "8")
	t.Setenv("CLIENT_ARTIFACTS_TYPE", "oci")

	cfg, err := fedasyncd.LoadClientConfig()
	require.NoError(t, err)

	assert.Equal(t, "edge-1", cfg.Agent.ID)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Agent.RegisterInterval)
	assert.Equal(t, 8, cfg.Model.Features)
	assert.Equal(t, "oci", cfg.Artifacts.Type)
	assert.Equal(t, channel.MQTT, cfg.Channel.Type)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("invalid run file", func(t *testing.T) {
		_, _, _, err := fedasyncd.LoadCoordinatorConfig(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
	t.Run("invalid tick interval", func(t *testing.T) {
		t.Setenv("COORDINATOR_TICK_INTERVAL", "soon")
		_, _, _, err := fedasyncd.LoadCoordinatorConfig("")
		assert.Error(t, err)
	})
	t.Run("invalid poll interval", func(t *testing.T) {
		t.Setenv("CLIENT_POLL_INTERVAL", "often")
		_, err := fedasyncd.LoadClientConfig()
		assert.Error(t, err)
	})
}
