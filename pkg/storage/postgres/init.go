package postgres

import (
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

type Config struct {
	Host    string `env:"HOST"    envDefault:"localhost"`
	Port    string `env:"PORT"    envDefault:"5432"`
	User    string `env:"USER"    envDefault:"fedasync"`
	Pass    string `env:"PASS"    envDefault:"fedasync"`
	Name    string `env:"DB"      envDefault:"fedasync"`
	SSLMode string `env:"SSLMODE" envDefault:"disable"`
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(cfg Config) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name, cfg.SSLMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						id VARCHAR(128) PRIMARY KEY,
						registered_at TIMESTAMPTZ NOT NULL,
						last_seen TIMESTAMPTZ NOT NULL,
						updates BIGINT NOT NULL DEFAULT 0
					)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id VARCHAR(128) NOT NULL,
						epoch INTEGER NOT NULL,
						chosen JSONB,
						contributors JSONB,
						lagging JSONB,
						weight_file TEXT NOT NULL,
						bias_file TEXT NOT NULL,
						acc DOUBLE PRECISION NOT NULL DEFAULT 0,
						loss DOUBLE PRECISION NOT NULL DEFAULT 0,
						num_samples BIGINT NOT NULL DEFAULT 0,
						degraded BOOLEAN NOT NULL DEFAULT FALSE,
						converged BOOLEAN NOT NULL DEFAULT FALSE,
						started_at TIMESTAMPTZ NOT NULL,
						finished_at TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (run_id, epoch)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_rounds_finished_at ON rounds(finished_at DESC)`,
				},
				Down: []string{
					`DROP INDEX IF EXISTS idx_rounds_finished_at`,
					`DROP TABLE IF EXISTS rounds`,
					`DROP TABLE IF EXISTS clients`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrMigration, err)
	}

	return nil
}
