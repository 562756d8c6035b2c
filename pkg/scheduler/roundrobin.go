package scheduler

import "sync"

type roundRobin struct {
	mu   sync.Mutex
	size int
	next int
}

// NewRoundRobin slides a window of size clients over the registry, one
// window per round.
func NewRoundRobin(size int) Selector {
	return &roundRobin{size: size}
}

func (r *roundRobin) Select(registered []string, _ int) ([]string, error) {
	if len(registered) == 0 {
		return nil, ErrNoClients
	}
	n := sampleSize(r.size, len(registered))

	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.next % len(registered)
	chosen := make([]string, 0, n)
	for i := range n {
		chosen = append(chosen, registered[(start+i)%len(registered)])
	}
	r.next = (start + n) % len(registered)

	return chosen, nil
}
