package postgres_test

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/absmach/fedasync/pkg/storage/postgres"
	"github.com/absmach/fedasync/pkg/storage/testutil"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var testDB *postgres.Database

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		log.Printf("skipping postgres tests, docker is unavailable: %s", err)
		os.Exit(0)
	}

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16.2-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start container: %s", err)
	}

	port := container.GetPort("5432/tcp")
	cfg := postgres.Config{Host: "localhost", Port: port, User: "test", Pass: "test", Name: "test", SSLMode: "disable"}

	pool.MaxWait = 120 * time.Second
	if err := pool.Retry(func() error {
		url := fmt.Sprintf("host=localhost port=%s user=test dbname=test password=test sslmode=disable", port)
		db, err := sql.Open("pgx", url)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Ping()
	}); err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	testDB, err = postgres.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Could not setup test DB connection: %s", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pool.Purge(container); err != nil {
		log.Fatalf("Could not purge container: %s", err)
	}

	os.Exit(code)
}

func TestClientRepository(t *testing.T) {
	testutil.ClientRepository(t, postgres.NewClientRepository(testDB))
}

func TestRoundRepository(t *testing.T) {
	testutil.RoundRepository(t, postgres.NewRoundRepository(testDB))
}
