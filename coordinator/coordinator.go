// Package coordinator owns the authoritative epoch of a federated training
// run. It selects the clients of each round, buffers their updates,
// aggregates them and announces the next round.
package coordinator

import (
	"context"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
)

type Phase string

const (
	// Waiting means fewer than min_fit_clients have registered.
	Waiting  Phase = "waiting"
	Training Phase = "training"
	Finished Phase = "finished"
)

type Status struct {
	RunID        string      `json:"run_id"`
	Phase        Phase       `json:"phase"`
	NEpochs      int         `json:"n_epochs"`
	CurrentEpoch int         `json:"current_epoch"`
	Chosen       []string    `json:"chosen"`
	Buffered     int         `json:"buffered"`
	Quorum       int         `json:"quorum"`
	Registered   int         `json:"registered"`
	Converged    bool        `json:"converged"`
	Deadline     time.Time   `json:"deadline,omitempty"`
	LastMetrics  *fl.Metrics `json:"last_metrics,omitempty"`
}

type ClientPage struct {
	Offset  uint64      `json:"offset"`
	Limit   uint64      `json:"limit"`
	Total   uint64      `json:"total"`
	Clients []fl.Client `json:"clients"`
}

type RoundPage struct {
	Offset uint64     `json:"offset"`
	Limit  uint64     `json:"limit"`
	Total  uint64     `json:"total"`
	Rounds []fl.Round `json:"rounds"`
}

type Service interface {
	// Register adds a client to the registry. Registering twice is a no-op
	// apart from re-sending the current round to the client.
	Register(ctx context.Context, clientID string) error
	// HandleUpdate admits an update into the current round's buffer and
	// aggregates once the quorum is reached. Updates that do not belong to
	// the round fail with an error wrapping fl.ErrProtocolViolation.
	HandleUpdate(ctx context.Context, update fl.ClientUpdateMessage) error
	// Tick enforces the round deadline.
	Tick(ctx context.Context) error
	// Resume restores the registry and the last completed round from
	// storage.
	Resume(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	ListClients(ctx context.Context, offset, limit uint64) (ClientPage, error)
	ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error)
}
