package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func TestClient(id string) fl.Client {
	ts := now()

	return fl.Client{
		ID:           id,
		RegisteredAt: ts,
		LastSeen:     ts,
	}
}

func TestRound(runID string, epoch int) fl.Round {
	ts := now()

	return fl.Round{
		RunID:        runID,
		Epoch:        epoch,
		Chosen:       []string{"a", "b", "c"},
		Contributors: []string{"a", "b"},
		Lagging:      []string{"c"},
		WeightFile:   fmt.Sprintf("%s_e%d.weight", runID, epoch),
		BiasFile:     fmt.Sprintf("%s_e%d.bias", runID, epoch),
		Metrics:      fl.Metrics{Acc: 0.75, Loss: 0.5, NumSamples: 64},
		Degraded:     epoch%2 == 0,
		StartedAt:    ts.Add(-time.Second),
		FinishedAt:   ts,
	}
}

// ClientRepository checks the behaviour every ClientRepository backend shares.
func ClientRepository(t *testing.T, repo storage.ClientRepository) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		c := TestClient(uuid.NewString())
		require.NoError(t, repo.Save(ctx, c))

		got, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.True(t, c.RegisteredAt.Equal(got.RegisteredAt))
	})

	t.Run("save replaces", func(t *testing.T) {
		c := TestClient(uuid.NewString())
		require.NoError(t, repo.Save(ctx, c))
		c.Updates = 3
		c.LastSeen = c.LastSeen.Add(time.Minute)
		require.NoError(t, repo.Save(ctx, c))

		got, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), got.Updates)
		assert.True(t, c.LastSeen.Equal(got.LastSeen))
	})

	cases := []struct {
		desc string
		id   string
		err  error
	}{
		{desc: "get missing client", id: "missing-" + uuid.NewString(), err: pkgerrors.ErrNotFound},
		{desc: "get empty id", id: "", err: pkgerrors.ErrEmptyKey},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := repo.Get(ctx, tc.id)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	t.Run("save empty id", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, fl.Client{}), pkgerrors.ErrEmptyKey)
	})

	t.Run("list pages", func(t *testing.T) {
		_, before, err := repo.List(ctx, 0, 1000)
		require.NoError(t, err)
		for range 3 {
			require.NoError(t, repo.Save(ctx, TestClient(uuid.NewString())))
		}

		all, total, err := repo.List(ctx, 0, 1000)
		require.NoError(t, err)
		assert.Equal(t, before+3, total)
		assert.Len(t, all, int(total))

		page, total, err := repo.List(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, before+3, total)
		assert.Len(t, page, 2)
		assert.Equal(t, all[1].ID, page[0].ID)

		empty, _, err := repo.List(ctx, total+10, 5)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

// RoundRepository checks the behaviour every RoundRepository backend shares.
func RoundRepository(t *testing.T, repo storage.RoundRepository) {
	ctx := context.Background()
	runID := "run-" + uuid.NewString()

	_, err := repo.Last(ctx, runID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	for _, epoch := range []int{1, 3, 2, 10} {
		require.NoError(t, repo.Create(ctx, TestRound(runID, epoch)))
	}
	require.NoError(t, repo.Create(ctx, TestRound("other-"+uuid.NewString(), 99)))

	t.Run("duplicate epoch", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, TestRound(runID, 2)), pkgerrors.ErrEntityExists)
	})

	t.Run("empty run id", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, TestRound("", 1)), pkgerrors.ErrEmptyKey)
	})

	t.Run("last is the highest epoch", func(t *testing.T) {
		last, err := repo.Last(ctx, runID)
		require.NoError(t, err)
		want := TestRound(runID, 10)
		assert.Equal(t, 10, last.Epoch)
		assert.Equal(t, want.Chosen, last.Chosen)
		assert.Equal(t, want.Contributors, last.Contributors)
		assert.Equal(t, want.Lagging, last.Lagging)
		assert.Equal(t, want.Metrics, last.Metrics)
		assert.Equal(t, want.WeightFile, last.WeightFile)
		assert.Equal(t, want.Degraded, last.Degraded)
	})

	t.Run("list is ordered by epoch and scoped by run", func(t *testing.T) {
		rounds, total, err := repo.List(ctx, runID, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), total)
		epochs := make([]int, 0, len(rounds))
		for _, r := range rounds {
			epochs = append(epochs, r.Epoch)
		}
		assert.Equal(t, []int{1, 2, 3, 10}, epochs)

		rounds, _, err = repo.List(ctx, runID, 2, 1)
		require.NoError(t, err)
		require.Len(t, rounds, 1)
		assert.Equal(t, 3, rounds[0].Epoch)
	})
}
