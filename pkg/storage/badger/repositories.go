package badger

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
)

const (
	clientPrefix = "client:"
	roundPrefix  = "round:"
)

type ClientRepository struct {
	db *Database
}

func NewClientRepository(db *Database) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Save(ctx context.Context, c fl.Client) error {
	if c.ID == "" {
		return pkgerrors.ErrEmptyKey
	}
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set([]byte(clientPrefix+c.ID), val)
}

func (r *ClientRepository) Get(ctx context.Context, id string) (fl.Client, error) {
	if id == "" {
		return fl.Client{}, pkgerrors.ErrEmptyKey
	}
	val, err := r.db.get([]byte(clientPrefix + id))
	if err != nil {
		return fl.Client{}, err
	}
	var c fl.Client
	if err := json.Unmarshal(val, &c); err != nil {
		return fl.Client{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return c, nil
}

func (r *ClientRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Client, uint64, error) {
	prefix := []byte(clientPrefix)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	clients := make([]fl.Client, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &clients[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return clients, total, nil
}

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

func runPrefix(runID string) []byte {
	return []byte(roundPrefix + runID + ":")
}

// roundKey zero-pads the epoch so that key order matches epoch order.
func roundKey(runID string, epoch int) []byte {
	return fmt.Appendf(runPrefix(runID), "%010d", epoch)
}

func (r *RoundRepository) Create(ctx context.Context, rd fl.Round) error {
	if rd.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	val, err := json.Marshal(rd)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.setNew(roundKey(rd.RunID, rd.Epoch), val)
}

func (r *RoundRepository) Last(ctx context.Context, runID string) (fl.Round, error) {
	val, err := r.db.lastWithPrefix(runPrefix(runID))
	if err != nil {
		return fl.Round{}, err
	}
	var rd fl.Round
	if err := json.Unmarshal(val, &rd); err != nil {
		return fl.Round{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rd, nil
}

func (r *RoundRepository) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.Round, uint64, error) {
	prefix := runPrefix(runID)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	rounds := make([]fl.Round, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &rounds[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return rounds, total, nil
}
