package fedasyncd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/absmach/supermq/pkg/server"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const clientSvc = "client"

// StartClient runs one training agent until the coordinator terminates the
// run, ctx is cancelled or a termination signal arrives.
func StartClient(ctx context.Context, cancel context.CancelFunc, cfg ClientConfig) error {
	g, ctx := errgroup.WithContext(ctx)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Agent.ID == "" {
		cfg.Agent.ID = uuid.NewString()
	}

	trainer, err := logreg.NewTrainer(cfg.Model)
	if err != nil {
		return err
	}

	ch, err := channel.New(cfg.Channel, clientSvc+"-"+cfg.Agent.ID, logger)
	if err != nil {
		return fmt.Errorf("failed to connect message channel: %w", err)
	}

	store, err := artifact.New(cfg.Artifacts)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize artifact store: %w", err), ch.Close(ctx))
	}

	agent, err := client.NewAgent(cfg.Agent, ch, store, trainer, logger)
	if err != nil {
		return errors.Join(err, ch.Close(ctx))
	}

	g.Go(func() error {
		defer cancel()

		err := agent.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, clientSvc)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", clientSvc, err))

		return err
	}

	snap := agent.Snapshot()
	logger.Info("client finished",
		slog.String("client_id", snap.ID),
		slog.Int("client_epoch", snap.ClientEpoch),
		slog.Float64("acc", snap.Acc),
		slog.Float64("loss", snap.Loss),
	)

	return nil
}
