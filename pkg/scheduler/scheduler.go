// Package scheduler picks the clients invited to a training round.
package scheduler

import (
	"errors"
	"fmt"
)

const (
	All        = "all"
	Random     = "random"
	RoundRobin = "round-robin"
)

var ErrNoClients = errors.New("no registered clients")

// Selector returns a non-empty subset of registered for the given round.
// Implementations must not modify registered.
type Selector interface {
	Select(registered []string, epoch int) ([]string, error)
}

func New(name string, size int, seed int64) (Selector, error) {
	switch name {
	case All, "":
		return NewAll(), nil
	case Random:
		return NewRandom(size, seed), nil
	case RoundRobin:
		return NewRoundRobin(size), nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", name)
	}
}

type all struct{}

func NewAll() Selector {
	return all{}
}

func (all) Select(registered []string, _ int) ([]string, error) {
	if len(registered) == 0 {
		return nil, ErrNoClients
	}

	return append([]string(nil), registered...), nil
}

func sampleSize(size, n int) int {
	if size <= 0 || size > n {
		return n
	}

	return size
}
