package sqlite

import (
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBConnection, err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS clients (
						id TEXT PRIMARY KEY,
						registered_at TIMESTAMP NOT NULL,
						last_seen TIMESTAMP NOT NULL,
						updates INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id TEXT NOT NULL,
						epoch INTEGER NOT NULL,
						chosen TEXT,
						contributors TEXT,
						lagging TEXT,
						weight_file TEXT NOT NULL,
						bias_file TEXT NOT NULL,
						acc REAL NOT NULL DEFAULT 0,
						loss REAL NOT NULL DEFAULT 0,
						num_samples INTEGER NOT NULL DEFAULT 0,
						degraded BOOLEAN NOT NULL DEFAULT FALSE,
						converged BOOLEAN NOT NULL DEFAULT FALSE,
						started_at TIMESTAMP NOT NULL,
						finished_at TIMESTAMP NOT NULL,
						PRIMARY KEY (run_id, epoch)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS rounds`,
					`DROP TABLE IF EXISTS clients`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrMigration, err)
	}

	return nil
}
