package scheduler_test

import (
	"testing"

	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registry = []string{"a", "b", "c", "d", "e"}

func TestSelectSubsetOfRegistry(t *testing.T) {
	cases := []struct {
		desc     string
		strategy string
		size     int
		want     int
	}{
		{desc: "all", strategy: scheduler.All, want: 5},
		{desc: "random sample", strategy: scheduler.Random, size: 2, want: 2},
		{desc: "random oversized sample", strategy: scheduler.Random, size: 10, want: 5},
		{desc: "round robin window", strategy: scheduler.RoundRobin, size: 3, want: 3},
		{desc: "round robin without size", strategy: scheduler.RoundRobin, want: 5},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := scheduler.New(tc.strategy, tc.size, 42)
			require.NoError(t, err)

			for epoch := 1; epoch <= 10; epoch++ {
				chosen, err := s.Select(registry, epoch)
				require.NoError(t, err)
				assert.Len(t, chosen, tc.want)
				assert.Subset(t, registry, chosen)

				seen := map[string]bool{}
				for _, id := range chosen {
					assert.False(t, seen[id], "duplicate id %s", id)
					seen[id] = true
				}
			}
		})
	}
}

func TestSelectEmptyRegistry(t *testing.T) {
	for _, name := range []string{scheduler.All, scheduler.Random, scheduler.RoundRobin} {
		s, err := scheduler.New(name, 2, 1)
		require.NoError(t, err)
		_, err = s.Select(nil, 1)
		assert.ErrorIs(t, err, scheduler.ErrNoClients, name)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	s := scheduler.NewRoundRobin(2)

	cases := []struct {
		desc string
		want []string
	}{
		{desc: "first window", want: []string{"a", "b"}},
		{desc: "second window", want: []string{"c", "d"}},
		{desc: "wraps around", want: []string{"e", "a"}},
		{desc: "continues after wrap", want: []string{"b", "c"}},
	}

	for i, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := s.Select(registry, i+1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRandomIsSeeded(t *testing.T) {
	a := scheduler.NewRandom(2, 7)
	b := scheduler.NewRandom(2, 7)

	for epoch := 1; epoch <= 5; epoch++ {
		x, err := a.Select(registry, epoch)
		require.NoError(t, err)
		y, err := b.Select(registry, epoch)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestSelectDoesNotAliasRegistry(t *testing.T) {
	reg := []string{"a", "b"}
	chosen, err := scheduler.NewAll().Select(reg, 1)
	require.NoError(t, err)
	chosen[0] = "z"
	assert.Equal(t, "a", reg[0])
}

func TestUnknownStrategy(t *testing.T) {
	_, err := scheduler.New("weighted", 1, 0)
	assert.Error(t, err)
}
