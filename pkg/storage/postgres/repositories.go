package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

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
	query := `INSERT INTO clients (id, registered_at, last_seen, updates) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET registered_at = EXCLUDED.registered_at, last_seen = EXCLUDED.last_seen, updates = EXCLUDED.updates`

	if _, err := r.db.ExecContext(ctx, query, c.ID, c.RegisteredAt.UTC(), c.LastSeen.UTC(), int64(c.Updates)); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrUpdate, err)
	}

	return nil
}

func (r *ClientRepository) Get(ctx context.Context, id string) (fl.Client, error) {
	if id == "" {
		return fl.Client{}, pkgerrors.ErrEmptyKey
	}
	query := `SELECT id, registered_at, last_seen, updates FROM clients WHERE id = $1`

	var c fl.Client
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Client{}, pkgerrors.ErrNotFound
		}

		return fl.Client{}, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return c, nil
}

func (r *ClientRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Client, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM clients"); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	query := `SELECT id, registered_at, last_seen, updates FROM clients ORDER BY id LIMIT $1 OFFSET $2`
	clients := []fl.Client{}
	if err := r.db.SelectContext(ctx, &clients, query, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return clients, total, nil
}

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

const roundColumns = `run_id, epoch, chosen, contributors, lagging, weight_file, bias_file, acc, loss, num_samples, degraded, converged, started_at, finished_at`

func (r *RoundRepository) Create(ctx context.Context, rd fl.Round) error {
	if rd.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	row, err := toDBRound(rd)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	query := `INSERT INTO rounds (` + roundColumns + `) VALUES (:run_id, :epoch, :chosen, :contributors, :lagging, :weight_file, :bias_file, :acc, :loss, :num_samples, :degraded, :converged, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return pkgerrors.ErrEntityExists
		}

		return fmt.Errorf("%w: %w", pkgerrors.ErrCreate, err)
	}

	return nil
}

func (r *RoundRepository) Last(ctx context.Context, runID string) (fl.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE run_id = $1 ORDER BY epoch DESC LIMIT 1`

	var row dbRound
	if err := r.db.GetContext(ctx, &row, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Round{}, pkgerrors.ErrNotFound
		}

		return fl.Round{}, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return row.toRound()
}

func (r *RoundRepository) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.Round, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM rounds WHERE run_id = $1", runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	query := `SELECT ` + roundColumns + ` FROM rounds WHERE run_id = $1 ORDER BY epoch LIMIT $2 OFFSET $3`
	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows, query, runID, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	rounds := make([]fl.Round, 0, len(rows))
	for _, row := range rows {
		rd, err := row.toRound()
		if err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		rounds = append(rounds, rd)
	}

	return rounds, total, nil
}
