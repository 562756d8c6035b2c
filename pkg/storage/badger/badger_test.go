package badger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedasync/pkg/storage/badger"
	"github.com/absmach/fedasync/pkg/storage/testutil"
	"github.com/google/uuid"
)

var testDB *badger.Database

func TestMain(m *testing.M) {
	dbPath := filepath.Join(os.TempDir(), "badger_test_"+uuid.NewString())

	var err error
	testDB, err = badger.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dbPath)

	os.Exit(code)
}

func TestClientRepository(t *testing.T) {
	testutil.ClientRepository(t, badger.NewClientRepository(testDB))
}

func TestRoundRepository(t *testing.T) {
	testutil.RoundRepository(t, badger.NewRoundRepository(testDB))
}
