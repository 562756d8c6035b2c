package fedasyncd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/api"
	"github.com/absmach/fedasync/coordinator/middleware"
	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const coordinatorSvc = "coordinator"

type closer interface {
	Close(ctx context.Context) error
}

// StartCoordinator runs the coordinator loop next to its HTTP API until ctx
// is cancelled or a termination signal arrives. The API keeps serving after
// the run has finished.
func StartCoordinator(ctx context.Context, cancel context.CancelFunc, cfg CoordinatorConfig, srv server.Config, run coordinator.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, coordinatorSvc, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			return fmt.Errorf("failed to initialize opentelemetry: %w", err)
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(coordinatorSvc)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	ch, err := channel.New(cfg.Channel, coordinatorSvc+"-"+cfg.InstanceID, logger)
	if err != nil {
		return fmt.Errorf("failed to connect message channel: %w", err)
	}
	defer func() {
		if err := ch.Close(context.Background()); err != nil && !errors.Is(err, channel.ErrClosed) {
			logger.Error("failed to close message channel", slog.Any("error", err))
		}
	}()

	store, err := artifact.New(cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	selector, err := scheduler.New(run.Selection, run.SampleSize, run.Seed)
	if err != nil {
		return err
	}
	aggregator, err := fl.NewAggregator(run.Aggregation, run.WasmAggregator)
	if err != nil {
		return err
	}
	if c, ok := aggregator.(closer); ok {
		defer c.Close(context.Background())
	}

	svc, err := coordinator.NewService(run, ch, store, repos.Clients, repos.Rounds, selector, aggregator, logreg.InitParams(run.Features), logger)
	if err != nil {
		return err
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(coordinatorSvc, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if repos.Persistent() {
		if err := svc.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume run: %w", err)
		}
	}

	hs := httpserver.NewServer(ctx, cancel, coordinatorSvc, srv, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, coordinatorSvc, hs)
	})

	g.Go(func() error {
		err := coordinator.Run(ctx, svc, ch, cfg.TickInterval, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", coordinatorSvc, err))

		return err
	}

	return nil
}
