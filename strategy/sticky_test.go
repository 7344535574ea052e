package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinjanata/nakadi/types"
)

func orderKeys(n int) []types.PartitionKey {
	keys := make([]types.PartitionKey, n)
	for i := range n {
		keys[i] = types.PartitionKey{Topic: "orders", Partition: fmt.Sprintf("%d", i)}
	}

	return keys
}

func countByOwner(target map[types.PartitionKey]string) map[string]int {
	counts := make(map[string]int)
	for _, owner := range target {
		counts[owner]++
	}

	return counts
}

func requireBalanced(t *testing.T, target map[types.PartitionKey]string, sessions int, partitions int) {
	t.Helper()

	counts := countByOwner(target)
	base := partitions / sessions
	for owner, n := range counts {
		require.GreaterOrEqual(t, n, base, "session %s under share", owner)
		require.LessOrEqual(t, n, base+1, "session %s over share", owner)
	}
}

func TestSticky_EvenDistribution(t *testing.T) {
	s := NewSticky()

	tests := []struct {
		name       string
		sessions   []string
		partitions int
	}{
		{name: "even split", sessions: []string{"a", "b"}, partitions: 8},
		{name: "with remainder", sessions: []string{"a", "b", "c"}, partitions: 8},
		{name: "more sessions than partitions", sessions: []string{"a", "b", "c", "d", "e"}, partitions: 3},
		{name: "single session", sessions: []string{"a"}, partitions: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := s.Assign(tt.sessions, orderKeys(tt.partitions), nil)
			require.NoError(t, err)
			require.Len(t, target, tt.partitions)
			requireBalanced(t, target, len(tt.sessions), tt.partitions)
		})
	}
}

func TestSticky_NoSessions(t *testing.T) {
	s := NewSticky()

	_, err := s.Assign(nil, orderKeys(4), nil)
	require.ErrorIs(t, err, ErrNoSessions)
}

func TestSticky_Deterministic(t *testing.T) {
	s := NewSticky()
	keys := orderKeys(16)
	current := map[types.PartitionKey]string{keys[0]: "b", keys[5]: "c"}

	first, err := s.Assign([]string{"c", "a", "b"}, keys, current)
	require.NoError(t, err)

	// Session and partition order must not influence the result.
	second, err := s.Assign([]string{"b", "c", "a"}, reverse(keys), current)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestSticky_MinimalMovement(t *testing.T) {
	s := NewSticky()
	keys := orderKeys(12)

	initial, err := s.Assign([]string{"a", "b", "c"}, keys, nil)
	require.NoError(t, err)

	t.Run("session joins", func(t *testing.T) {
		target, err := s.Assign([]string{"a", "b", "c", "d"}, keys, initial)
		require.NoError(t, err)
		requireBalanced(t, target, 4, len(keys))

		// 12 partitions over 4 sessions: the newcomer takes exactly its
		// share of 3, nothing else moves.
		moved := 0
		for key, owner := range target {
			if initial[key] != owner {
				moved++
				require.Equal(t, "d", owner, "partitions may only move to the new session")
			}
		}
		require.Equal(t, 3, moved)
	})

	t.Run("session leaves", func(t *testing.T) {
		target, err := s.Assign([]string{"a", "b"}, keys, initial)
		require.NoError(t, err)
		requireBalanced(t, target, 2, len(keys))

		// Survivors keep everything they had.
		for key, owner := range initial {
			if owner == "a" || owner == "b" {
				require.Equal(t, owner, target[key])
			}
		}
	})
}

func TestSticky_OverloadedOwnerShedsPartitions(t *testing.T) {
	s := NewSticky()
	keys := orderKeys(6)

	// One session owns everything; a second one joins.
	current := make(map[types.PartitionKey]string, len(keys))
	for _, key := range keys {
		current[key] = "a"
	}

	target, err := s.Assign([]string{"a", "b"}, keys, current)
	require.NoError(t, err)
	requireBalanced(t, target, 2, len(keys))

	kept := 0
	for _, owner := range target {
		if owner == "a" {
			kept++
		}
	}
	require.Equal(t, 3, kept, "old owner keeps exactly its share")
}

func reverse(keys []types.PartitionKey) []types.PartitionKey {
	out := make([]types.PartitionKey, len(keys))
	for i, key := range keys {
		out[len(keys)-1-i] = key
	}

	return out
}
