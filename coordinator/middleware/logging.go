package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Register(ctx context.Context, clientID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", clientID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.Register(ctx, clientID)
}

func (lm *loggingMiddleware) HandleUpdate(ctx context.Context, update fl.ClientUpdateMessage) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("client_id", update.ClientID),
				slog.Int("epoch", update.Epoch),
				slog.Int("global_epoch", update.GlobalEpoch),
				slog.Float64("acc", update.Acc),
				slog.Float64("loss", update.Loss),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Handle update failed", args...)

			return
		}
		lm.logger.Info("Handle update completed successfully", args...)
	}(time.Now())

	return lm.svc.HandleUpdate(ctx, update)
}

// Tick runs on every coordinator loop iteration, so success is logged at
// debug level.
func (lm *loggingMiddleware) Tick(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Tick failed", args...)

			return
		}
		lm.logger.Debug("Tick completed successfully", args...)
	}(time.Now())

	return lm.svc.Tick(ctx)
}

func (lm *loggingMiddleware) Resume(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Resume run failed", args...)

			return
		}
		lm.logger.Info("Resume run completed successfully", args...)
	}(time.Now())

	return lm.svc.Resume(ctx)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (resp coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", resp.RunID),
				slog.String("phase", string(resp.Phase)),
				slog.Int("current_epoch", resp.CurrentEpoch),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Debug("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) ListClients(ctx context.Context, offset, limit uint64) (resp coordinator.ClientPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List clients failed", args...)

			return
		}
		lm.logger.Info("List clients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListClients(ctx, offset, limit)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (resp coordinator.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}
