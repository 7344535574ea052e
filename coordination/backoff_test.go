package coordination

import (
	rand "math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterBackoff(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	t.Run("StartsFromBase", func(t *testing.T) {
		got := jitterBackoff(0, 100*time.Millisecond, 2.0, time.Second, rng)
		require.Equal(t, 100*time.Millisecond, got)
	})

	t.Run("GrowsWithinBounds", func(t *testing.T) {
		base := 100 * time.Millisecond
		capDur := 2 * time.Second

		prev := time.Duration(0)
		for range 20 {
			next := jitterBackoff(prev, base, 2.0, capDur, rng)
			require.GreaterOrEqual(t, next, base)
			require.LessOrEqual(t, next, capDur)
			prev = next
		}
	})

	t.Run("CapBelowBaseReturnsCap", func(t *testing.T) {
		got := jitterBackoff(500*time.Millisecond, 100*time.Millisecond, 2.0, 50*time.Millisecond, rng)
		require.Equal(t, 50*time.Millisecond, got)
	})

	t.Run("ZeroBaseFallsBack", func(t *testing.T) {
		got := jitterBackoff(0, 0, 2.0, time.Second, rng)
		require.Equal(t, 50*time.Millisecond, got)
	})

	t.Run("MultiplierBelowOneDoesNotShrink", func(t *testing.T) {
		base := 100 * time.Millisecond
		got := jitterBackoff(base, base, 0.5, time.Second, rng)
		require.GreaterOrEqual(t, got, base)
	})
}
