package storage

import (
	"fmt"
	"io"

	"github.com/absmach/fedasync/pkg/storage/badger"
	"github.com/absmach/fedasync/pkg/storage/postgres"
	"github.com/absmach/fedasync/pkg/storage/sqlite"
)

const (
	Memory   = "memory"
	Badger   = "badger"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

type Config struct {
	Type       string          `env:"TYPE"        envDefault:"memory"`
	SQLitePath string          `env:"SQLITE_PATH" envDefault:"./fedasync.db"`
	BadgerPath string          `env:"BADGER_PATH" envDefault:"./data/badger"`
	Postgres   postgres.Config `envPrefix:"POSTGRES_"`
}

type Repositories struct {
	Clients ClientRepository
	Rounds  RoundRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

// Persistent reports whether the repositories survive a restart.
func (r *Repositories) Persistent() bool {
	return r.Closer != nil
}

func (r *Repositories) Close() error {
	if r.Closer == nil {
		return nil
	}

	return r.Closer.Close()
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case Postgres:
		db, err := postgres.NewDatabase(cfg.Postgres)
		if err != nil {
			return nil, err
		}

		return &Repositories{
			Clients: postgres.NewClientRepository(db),
			Rounds:  postgres.NewRoundRepository(db),
			Closer:  db,
		}, nil
	case SQLite:
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return &Repositories{
			Clients: sqlite.NewClientRepository(db),
			Rounds:  sqlite.NewRoundRepository(db),
			Closer:  db,
		}, nil
	case Badger:
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return &Repositories{
			Clients: badger.NewClientRepository(db),
			Rounds:  badger.NewRoundRepository(db),
			Closer:  db,
		}, nil
	case Memory, "":
		return &Repositories{
			Clients: NewMemoryClientRepository(),
			Rounds:  NewMemoryRoundRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
