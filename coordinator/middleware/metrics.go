package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Register(ctx context.Context, clientID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "register").Add(1)
		mm.latency.With("method", "register").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Register(ctx, clientID)
}

func (mm *metricsMiddleware) HandleUpdate(ctx context.Context, update fl.ClientUpdateMessage) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "handle-update").Add(1)
		mm.latency.With("method", "handle-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.HandleUpdate(ctx, update)
}

func (mm *metricsMiddleware) Tick(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "tick").Add(1)
		mm.latency.With("method", "tick").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Tick(ctx)
}

func (mm *metricsMiddleware) Resume(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "resume").Add(1)
		mm.latency.With("method", "resume").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Resume(ctx)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context, offset, limit uint64) (coordinator.ClientPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-clients").Add(1)
		mm.latency.With("method", "list-clients").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListClients(ctx, offset, limit)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}
