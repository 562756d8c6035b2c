package middleware

import (
	"context"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Register(ctx context.Context, clientID string) error {
	ctx, span := tm.tracer.Start(ctx, "register", trace.WithAttributes(
		attribute.String("client_id", clientID),
	))
	defer span.End()

	return tm.svc.Register(ctx, clientID)
}

func (tm *tracing) HandleUpdate(ctx context.Context, update fl.ClientUpdateMessage) error {
	ctx, span := tm.tracer.Start(ctx, "handle-update", trace.WithAttributes(
		attribute.String("client_id", update.ClientID),
		attribute.Int("epoch", update.Epoch),
		attribute.Int("global_epoch", update.GlobalEpoch),
	))
	defer span.End()

	return tm.svc.HandleUpdate(ctx, update)
}

func (tm *tracing) Tick(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "tick")
	defer span.End()

	return tm.svc.Tick(ctx)
}

func (tm *tracing) Resume(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "resume")
	defer span.End()

	return tm.svc.Resume(ctx)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) ListClients(ctx context.Context, offset, limit uint64) (coordinator.ClientPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListClients(ctx, offset, limit)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}
