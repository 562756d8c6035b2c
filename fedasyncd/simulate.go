package fedasyncd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/middleware"
	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/absmach/fedasync/pkg/storage"
	"golang.org/x/sync/errgroup"
)

var errNoClients = errors.New("simulation needs at least one client")

type SimulateConfig struct {
	Clients      int
	Run          coordinator.Config
	Model        logreg.Config
	PollInterval time.Duration
	// ArtifactRoot defaults to a temporary directory removed afterwards.
	ArtifactRoot string
	Logger       *slog.Logger
}

type SimulateResult struct {
	Status  coordinator.Status `json:"status"`
	Rounds  []fl.Round         `json:"rounds"`
	Clients []client.Snapshot  `json:"clients"`
}

// Simulate runs a coordinator and cfg.Clients agents in one process over an
// in-memory broker and a shared filesystem store. Client i trains on
// synthetic data seeded with Model.Seed+i.
func Simulate(ctx context.Context, cfg SimulateConfig) (SimulateResult, error) {
	if cfg.Clients < 1 {
		return SimulateResult{}, errNoClients
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}

	root := cfg.ArtifactRoot
	if root == "" {
		dir, err := os.MkdirTemp("", "fedasync-sim-")
		if err != nil {
			return SimulateResult{}, err
		}
		defer os.RemoveAll(dir)
		root = dir
	}

	selector, err := scheduler.New(cfg.Run.Selection, cfg.Run.SampleSize, cfg.Run.Seed)
	if err != nil {
		return SimulateResult{}, err
	}
	aggregator, err := fl.NewAggregator(cfg.Run.Aggregation, cfg.Run.WasmAggregator)
	if err != nil {
		return SimulateResult{}, err
	}
	if c, ok := aggregator.(closer); ok {
		defer c.Close(context.Background())
	}

	broker := channel.NewBroker(4 * (cfg.Clients + 1) * cfg.Run.NEpochs)
	store, err := newSimStore(root)
	if err != nil {
		return SimulateResult{}, err
	}

	svc, err := coordinator.NewService(cfg.Run, broker.Channel(), store,
		storage.NewMemoryClientRepository(), storage.NewMemoryRoundRepository(),
		selector, aggregator, logreg.InitParams(cfg.Run.Features), logger)
	if err != nil {
		return SimulateResult{}, err
	}
	svc = middleware.Logging(logger, svc)

	agents := make([]*client.Agent, cfg.Clients)
	for i := range agents {
		model := cfg.Model
		model.Features = cfg.Run.Features
		model.Seed = cfg.Model.Seed + int64(i)
		trainer, err := logreg.NewTrainer(model)
		if err != nil {
			return SimulateResult{}, err
		}
		store, err := newSimStore(root)
		if err != nil {
			return SimulateResult{}, err
		}
		agents[i], err = client.NewAgent(client.Config{
			ID:           fmt.Sprintf("client-%d", i),
			PollInterval: cfg.PollInterval,
		}, broker.Channel(), store, trainer, logger)
		if err != nil {
			return SimulateResult{}, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Run(gctx, svc, broker.Channel(), cfg.PollInterval, logger)
	})
	for _, a := range agents {
		g.Go(func() error {
			return a.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return SimulateResult{}, err
	}

	var res SimulateResult
	if res.Status, err = svc.Status(ctx); err != nil {
		return SimulateResult{}, err
	}
	page, err := svc.ListRounds(ctx, 0, uint64(cfg.Run.NEpochs))
	if err != nil {
		return SimulateResult{}, err
	}
	res.Rounds = page.Rounds
	for _, a := range agents {
		res.Clients = append(res.Clients, a.Snapshot())
	}

	return res, nil
}

// newSimStore gives every participant a private scratch directory over the
// shared root.
func newSimStore(root string) (artifact.Store, error) {
	dir, err := os.MkdirTemp(root, ".scratch-")
	if err != nil {
		return nil, err
	}
	scratch, err := artifact.NewScratch(dir)
	if err != nil {
		return nil, err
	}

	return artifact.NewFS(root, scratch)
}
