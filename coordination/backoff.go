package coordination

import (
	rand "math/rand/v2"
	"time"
)

// jitterBackoff implements jittered exponential backoff with a cap ("Full
// Jitter" variant). Given the previous delay, the next delay is drawn from
// [base, base + prev*mult - base), clamped to capDur.
//
// Behavior:
//   - prev <= 0 starts from base
//   - mult < 1.0 falls back to 1.0 (no growth)
//   - capDur <= base returns capDur
//
// A nil rng uses the package-level PRNG; tests pass a seeded one.
func jitterBackoff(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}

	if prev <= 0 {
		if capDur > 0 && base > capDur {
			return capDur
		}

		return base
	}

	maxDelta := time.Duration(float64(prev)*mult) - base
	if maxDelta <= 0 {
		maxDelta = base
	}

	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(maxDelta))
	} else {
		jitter = rand.Int64N(int64(maxDelta)) //nolint:gosec // non-crypto backoff jitter
	}

	next := base + time.Duration(jitter)
	if capDur > 0 && next > capDur {
		return capDur
	}

	return next
}
