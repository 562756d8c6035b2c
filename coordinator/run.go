package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
)

// Run drains registrations and updates from ch every interval, feeds them to
// svc and enforces round deadlines. It returns nil once the run has
// finished, the context error on cancellation, and any channel failure.
func Run(ctx context.Context, svc Service, ch channel.Channel, interval time.Duration, logger *slog.Logger) error {
	if err := channel.Subscribe(ctx, ch, channel.RegisterKey, channel.UpdateKey); err != nil {
		return fmt.Errorf("failed to subscribe coordinator queues: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := drainRegistrations(ctx, svc, ch, logger); err != nil {
			return err
		}
		if err := drainUpdates(ctx, svc, ch, logger); err != nil {
			return err
		}
		if err := svc.Tick(ctx); err != nil {
			logger.Error("round tick failed", slog.Any("error", err))
		}

		st, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		if st.Phase == Finished {
			logger.Info("coordinator finished", slog.Int("current_epoch", st.CurrentEpoch), slog.Bool("converged", st.Converged))

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func drainRegistrations(ctx context.Context, svc Service, ch channel.Channel, logger *slog.Logger) error {
	for {
		payload, err := ch.Poll(ctx, channel.RegisterKey)
		if err != nil {
			return fmt.Errorf("failed to poll registrations: %w", err)
		}
		if payload == nil {
			return nil
		}
		id, err := fl.DecodeRegistration(payload)
		if err != nil {
			logger.Warn("dropped malformed registration", slog.Any("error", err))

			continue
		}
		if err := svc.Register(ctx, id); err != nil {
			logger.Error("failed to register client", slog.String("client_id", id), slog.Any("error", err))
		}
	}
}

func drainUpdates(ctx context.Context, svc Service, ch channel.Channel, logger *slog.Logger) error {
	for {
		payload, err := ch.Poll(ctx, channel.UpdateKey)
		if err != nil {
			return fmt.Errorf("failed to poll updates: %w", err)
		}
		if payload == nil {
			return nil
		}
		u, err := fl.DecodeUpdate(payload)
		if err != nil {
			logger.Warn("dropped malformed update", slog.Any("error", err))

			continue
		}
		err = svc.HandleUpdate(ctx, u)
		switch {
		case err == nil:
		case errors.Is(err, fl.ErrProtocolViolation), errors.Is(err, fl.ErrTerminated):
			logger.Warn("discarded update",
				slog.String("client_id", u.ClientID),
				slog.Int("global_epoch", u.GlobalEpoch),
				slog.Any("error", err),
			)
		default:
			logger.Error("failed to handle update", slog.String("client_id", u.ClientID), slog.Any("error", err))
		}
	}
}
