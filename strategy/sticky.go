package strategy

import (
	"slices"

	"github.com/akinjanata/nakadi/types"
)

// Sticky implements even partition distribution with minimal movement.
type Sticky struct{}

var _ types.AssignmentStrategy = (*Sticky)(nil)

// NewSticky creates a new sticky strategy.
//
// The strategy balances partitions so that session counts differ by at most
// one, and keeps a partition with its current owner whenever that owner is
// still alive and under its share. Only the partitions that must move to
// restore balance are reassigned.
//
// Returns:
//   - *Sticky: Initialized sticky strategy
func NewSticky() *Sticky {
	return &Sticky{}
}

// Assign calculates partition assignments with minimal movement.
//
// The algorithm:
//  1. Sort sessions and partitions for deterministic iteration
//  2. Compute each session's share: len(partitions)/len(sessions), with the
//     remainder going to the lexicographically first sessions
//  3. Keep current owners that are alive and under their share
//  4. Place the remaining partitions, in order, on sessions with spare share
//
// Parameters:
//   - sessions: IDs of the live consumer sessions
//   - partitions: Keys of all partitions of the subscription
//   - current: Current owner per partition (may be nil)
//
// Returns:
//   - map[types.PartitionKey]string: Target owner session per partition
//   - error: ErrNoSessions when no sessions were provided
func (s *Sticky) Assign(sessions []string, partitions []types.PartitionKey, current map[types.PartitionKey]string) (map[types.PartitionKey]string, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	ordered := sortedUnique(sessions)
	parts := slices.Clone(partitions)
	slices.SortFunc(parts, types.PartitionKey.Compare)

	base := len(parts) / len(ordered)
	remainder := len(parts) % len(ordered)

	share := make(map[string]int, len(ordered))
	for i, id := range ordered {
		share[id] = base
		if i < remainder {
			share[id]++
		}
	}

	target := make(map[types.PartitionKey]string, len(parts))
	counts := make(map[string]int, len(ordered))

	// First pass: keep live owners that still fit their share.
	for _, key := range parts {
		owner, owned := current[key]
		if !owned {
			continue
		}
		if _, alive := share[owner]; !alive {
			continue
		}
		if counts[owner] >= share[owner] {
			continue
		}

		target[key] = owner
		counts[owner]++
	}

	// Second pass: place the rest on sessions with spare share.
	next := 0
	for _, key := range parts {
		if _, ok := target[key]; ok {
			continue
		}
		for counts[ordered[next]] >= share[ordered[next]] {
			next++
		}

		target[key] = ordered[next]
		counts[ordered[next]]++
	}

	return target, nil
}

func sortedUnique(sessions []string) []string {
	ordered := slices.Clone(sessions)
	slices.Sort(ordered)

	return slices.Compact(ordered)
}
