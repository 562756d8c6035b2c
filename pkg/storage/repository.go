package storage

import (
	"context"

	"github.com/absmach/fedasync/pkg/fl"
)

type ClientRepository interface {
	// Save inserts or replaces the client with the same ID.
	Save(ctx context.Context, c fl.Client) error
	Get(ctx context.Context, id string) (fl.Client, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.Client, uint64, error)
}

type RoundRepository interface {
	Create(ctx context.Context, r fl.Round) error
	// Last returns the highest recorded epoch of runID.
	Last(ctx context.Context, runID string) (fl.Round, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]fl.Round, uint64, error)
}
