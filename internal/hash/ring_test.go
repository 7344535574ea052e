package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinjanata/nakadi/types"
)

func testKeys(n int) []types.PartitionKey {
	keys := make([]types.PartitionKey, n)
	for i := range n {
		keys[i] = types.PartitionKey{Topic: "orders", Partition: fmt.Sprintf("%d", i)}
	}

	return keys
}

func TestRing_Deterministic(t *testing.T) {
	sessions := []string{"stream-a", "stream-b", "stream-c"}
	keys := testKeys(32)

	first := NewRing(sessions, 150, 0)
	second := NewRing(sessions, 150, 0)

	for _, key := range keys {
		require.Equal(t, first.NodeFor(key), second.NodeFor(key), "placement must be deterministic for %s", key)
	}
}

func TestRing_OrderIndependent(t *testing.T) {
	keys := testKeys(32)

	forward := NewRing([]string{"stream-a", "stream-b", "stream-c"}, 150, 0)
	reversed := NewRing([]string{"stream-c", "stream-b", "stream-a"}, 150, 0)

	for _, key := range keys {
		require.Equal(t, forward.NodeFor(key), reversed.NodeFor(key))
	}
}

func TestRing_EmptyAndDuplicates(t *testing.T) {
	t.Run("empty ring returns empty session", func(t *testing.T) {
		ring := NewRing(nil, 150, 0)
		require.Equal(t, "", ring.NodeFor(types.PartitionKey{Topic: "orders", Partition: "0"}))
		require.Zero(t, ring.Size())
	})

	t.Run("duplicate sessions are collapsed", func(t *testing.T) {
		ring := NewRing([]string{"stream-a", "stream-a", "stream-b"}, 100, 0)
		require.Equal(t, []string{"stream-a", "stream-b"}, ring.Sessions())
		require.Equal(t, 200, ring.Size())
	})
}

func TestRing_MinimalMovementOnScaling(t *testing.T) {
	keys := testKeys(200)

	before := NewRing([]string{"stream-a", "stream-b", "stream-c"}, 150, 0)
	after := NewRing([]string{"stream-a", "stream-b", "stream-c", "stream-d"}, 150, 0)

	moved := 0
	for _, key := range keys {
		if before.NodeFor(key) != after.NodeFor(key) {
			moved++
		}
	}

	// Adding one session to three should move roughly a quarter of the keys.
	require.Less(t, moved, len(keys)/2, "adding a session moved %d of %d keys", moved, len(keys))
}

func TestRing_SeedChangesPlacement(t *testing.T) {
	sessions := []string{"stream-a", "stream-b", "stream-c", "stream-d"}
	keys := testKeys(64)

	unseeded := NewRing(sessions, 150, 0)
	seeded := NewRing(sessions, 150, 12345)

	differs := false
	for _, key := range keys {
		if unseeded.NodeFor(key) != seeded.NodeFor(key) {
			differs = true
			break
		}
	}
	require.True(t, differs, "seed should influence placement")
}
