package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
)

type memoryClients struct {
	mu      sync.RWMutex
	clients map[string]fl.Client
}

func NewMemoryClientRepository() ClientRepository {
	return &memoryClients{clients: make(map[string]fl.Client)}
}

func (m *memoryClients) Save(ctx context.Context, c fl.Client) error {
	if c.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c.ID] = c

	return nil
}

func (m *memoryClients) Get(ctx context.Context, id string) (fl.Client, error) {
	if id == "" {
		return fl.Client{}, pkgerrors.ErrEmptyKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return fl.Client{}, pkgerrors.ErrNotFound
	}

	return c, nil
}

func (m *memoryClients) List(ctx context.Context, offset, limit uint64) ([]fl.Client, uint64, error) {
	m.mu.RLock()
	all := make([]fl.Client, 0, len(m.clients))
	for _, c := range m.clients {
		all = append(all, c)
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b fl.Client) int {
		return strings.Compare(a.ID, b.ID)
	})

	return Page(all, offset, limit), uint64(len(all)), nil
}

type memoryRounds struct {
	mu     sync.RWMutex
	rounds map[string][]fl.Round
}

func NewMemoryRoundRepository() RoundRepository {
	return &memoryRounds{rounds: make(map[string][]fl.Round)}
}

func (m *memoryRounds) Create(ctx context.Context, r fl.Round) error {
	if r.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rounds[r.RunID] {
		if existing.Epoch == r.Epoch {
			return pkgerrors.ErrEntityExists
		}
	}
	m.rounds[r.RunID] = append(m.rounds[r.RunID], r)
	slices.SortFunc(m.rounds[r.RunID], func(a, b fl.Round) int {
		return a.Epoch - b.Epoch
	})

	return nil
}

func (m *memoryRounds) Last(ctx context.Context, runID string) (fl.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rounds := m.rounds[runID]
	if len(rounds) == 0 {
		return fl.Round{}, pkgerrors.ErrNotFound
	}

	return rounds[len(rounds)-1], nil
}

func (m *memoryRounds) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.Round, uint64, error) {
	m.mu.RLock()
	rounds := slices.Clone(m.rounds[runID])
	m.mu.RUnlock()

	return Page(rounds, offset, limit), uint64(len(rounds)), nil
}

// Page returns the [offset, offset+limit) window of items.
func Page[T any](items []T, offset, limit uint64) []T {
	total := uint64(len(items))
	if offset >= total {
		return []T{}
	}
	end := min(offset+limit, total)

	return items[offset:end]
}
