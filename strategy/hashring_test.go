package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinjanata/nakadi/types"
)

func TestHashRing_AssignsEveryPartition(t *testing.T) {
	hr := NewHashRing()
	keys := orderKeys(32)

	target, err := hr.Assign([]string{"a", "b", "c"}, keys, nil)
	require.NoError(t, err)
	require.Len(t, target, len(keys))

	for key, owner := range target {
		require.Contains(t, []string{"a", "b", "c"}, owner, "partition %s", key)
	}
}

func TestHashRing_NoSessions(t *testing.T) {
	hr := NewHashRing()

	_, err := hr.Assign(nil, orderKeys(4), nil)
	require.ErrorIs(t, err, ErrNoSessions)
}

func TestHashRing_IgnoresCurrentOwnership(t *testing.T) {
	hr := NewHashRing()
	keys := orderKeys(16)

	bare, err := hr.Assign([]string{"a", "b"}, keys, nil)
	require.NoError(t, err)

	// Placement follows only the key hash, whatever ownership claims say.
	skewed := make(map[types.PartitionKey]string, len(keys))
	for _, key := range keys {
		skewed[key] = "b"
	}

	withCurrent, err := hr.Assign([]string{"a", "b"}, keys, skewed)
	require.NoError(t, err)
	require.Equal(t, bare, withCurrent)
}

func TestHashRing_Deterministic(t *testing.T) {
	hr := NewHashRing(WithVirtualNodes(200), WithHashSeed(7))
	keys := orderKeys(24)

	first, err := hr.Assign([]string{"c", "a", "b"}, keys, nil)
	require.NoError(t, err)

	second, err := hr.Assign([]string{"a", "b", "c"}, reverse(keys), nil)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestHashRing_StablePlacementAcrossSessionChurn(t *testing.T) {
	hr := NewHashRing()
	keys := orderKeys(100)

	before, err := hr.Assign([]string{"a", "b", "c"}, keys, nil)
	require.NoError(t, err)

	after, err := hr.Assign([]string{"a", "b", "c", "d"}, keys, nil)
	require.NoError(t, err)

	moved := 0
	for _, key := range keys {
		if before[key] != after[key] {
			moved++
			require.Equal(t, "d", after[key], "moved partitions must land on the new session")
		}
	}
	require.Less(t, moved, len(keys)/2)
}
