package scheduler

import (
	"math/rand/v2"
	"slices"
	"sync"
)

type random struct {
	mu   sync.Mutex
	size int
	rng  *rand.Rand
}

// NewRandom samples size clients uniformly per round. The same seed yields
// the same sequence of chosen sets for the same registry.
func NewRandom(size int, seed int64) Selector {
	return &random{
		size: size,
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

func (r *random) Select(registered []string, _ int) ([]string, error) {
	if len(registered) == 0 {
		return nil, ErrNoClients
	}
	n := sampleSize(r.size, len(registered))

	r.mu.Lock()
	perm := r.rng.Perm(len(registered))
	r.mu.Unlock()

	chosen := make([]string, 0, n)
	for _, i := range perm[:n] {
		chosen = append(chosen, registered[i])
	}
	slices.Sort(chosen)

	return chosen, nil
}
