package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/types"
)

// Rebalance brings the partition assignment in line with the live session
// set. It is triggered on every session join, on observed session loss, and
// periodically by the monitor.
//
// The pass has two phases. Cleanup first: partitions owned by departed
// sessions return to UNASSIGNED immediately (no drain is possible, the last
// committed offset stands as the resume point), reassignments whose parties
// died are resolved, and ASSIGNING/REASSIGNING partitions stuck beyond the
// acknowledgment timeout return to UNASSIGNED. Then distribution: the
// strategy computes the deterministic target assignment, UNASSIGNED
// partitions start ASSIGNING toward their target, and ASSIGNED partitions
// with a different target start REASSIGNING.
//
// Every transition is written with compare-and-swap. A lost write is
// skipped, not retried: the competing coordinator instance computed the same
// deterministic target, so the transition is already installed.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Store failure; individual lost CAS races are not errors
func (c *Coordinator) Rebalance(ctx context.Context) error {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}

	entries, err := c.listPartitionEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	live := make(map[string]struct{}, len(sessions))
	for _, id := range sessions {
		live[id] = struct{}{}
	}

	entries, err = c.cleanupPass(ctx, entries, live)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		// Nothing to distribute to; cleanup alone is the rebalance.
		c.metrics.RecordRebalance(0, len(entries), 0)

		return nil
	}

	keys := make([]types.PartitionKey, 0, len(entries))
	current := make(map[types.PartitionKey]string, len(entries))
	for _, e := range entries {
		keys = append(keys, e.partition.Key)
		if owner := e.partition.EffectiveOwner(); owner != "" {
			if _, ok := live[owner]; ok {
				current[e.partition.Key] = owner
			}
		}
	}

	target, err := c.strategy.Assign(sessions, keys, current)
	if err != nil {
		return fmt.Errorf("compute assignment: %w", err)
	}

	moved, err := c.applyPass(ctx, entries, live, target)
	if err != nil {
		return err
	}

	c.metrics.RecordRebalance(len(sessions), len(entries), moved)
	if moved > 0 {
		c.logger.Info("rebalance applied",
			"subscription", c.cfg.SubscriptionID,
			"sessions", len(sessions),
			"partitions", len(entries),
			"moved", moved,
		)
	}

	return nil
}

// cleanupPass resolves dead owners and timed-out transitions, returning the
// updated entries.
func (c *Coordinator) cleanupPass(ctx context.Context, entries []partitionEntry, live map[string]struct{}) ([]partitionEntry, error) {
	now := time.Now().UTC()
	out := make([]partitionEntry, 0, len(entries))

	for _, e := range entries {
		p := e.partition
		next, changed := cleanupTransition(p, live, now, c.cfg.AckTimeout)
		if !changed {
			out = append(out, e)
			continue
		}

		if err := c.writePartition(ctx, next, e.revision); err != nil {
			if errors.Is(err, types.ErrConflict) {
				// Another instance already resolved this partition; take its
				// word for the rest of the pass.
				refreshed, revision, gerr := c.getPartition(ctx, p.Key)
				if gerr != nil {
					return nil, gerr
				}
				out = append(out, partitionEntry{partition: refreshed, revision: revision})
				continue
			}

			return nil, err
		}

		refreshed, revision, err := c.getPartition(ctx, next.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, partitionEntry{partition: refreshed, revision: revision})
	}

	return out, nil
}

// cleanupTransition computes the recovery transition for one partition, if
// any.
func cleanupTransition(p types.Partition, live map[string]struct{}, now time.Time, ackTimeout time.Duration) (types.Partition, bool) {
	isLive := func(id string) bool {
		if id == "" {
			return false
		}
		_, ok := live[id]

		return ok
	}
	timedOut := !p.AssignedAt.IsZero() && now.Sub(p.AssignedAt) > ackTimeout

	toUnassigned := func() (types.Partition, bool) {
		p.SessionID = ""
		p.NextSessionID = ""
		p.State = types.StateUnassigned
		p.AssignedAt = time.Time{}

		return p, true
	}

	switch p.State {
	case types.StateAssigned:
		if !isLive(p.SessionID) {
			return toUnassigned()
		}

	case types.StateAssigning:
		if !isLive(p.SessionID) || timedOut {
			return toUnassigned()
		}

	case types.StateReassigning:
		ownerLive, nextLive := isLive(p.SessionID), isLive(p.NextSessionID)
		switch {
		case !ownerLive && nextLive:
			// The draining owner died; no release will come. Hand over.
			p.SessionID = p.NextSessionID
			p.NextSessionID = ""
			p.State = types.StateAssigned
			p.AssignedAt = time.Time{}

			return p, true
		case !ownerLive && !nextLive:
			return toUnassigned()
		case !nextLive:
			// The incoming session died; the owner keeps the partition.
			p.NextSessionID = ""
			p.State = types.StateAssigned
			p.AssignedAt = time.Time{}

			return p, true
		case timedOut:
			// The owner never released. Take the partition away entirely.
			return toUnassigned()
		}

	case types.StateUnassigned:
	}

	return p, false
}

// applyPass installs the target assignment, returning the number of
// partitions that started moving.
func (c *Coordinator) applyPass(ctx context.Context, entries []partitionEntry, live map[string]struct{}, target map[types.PartitionKey]string) (int, error) {
	now := time.Now().UTC()
	moved := 0

	for _, e := range entries {
		p := e.partition
		want, ok := target[p.Key]
		if !ok {
			continue
		}

		switch p.State {
		case types.StateUnassigned:
			p.SessionID = want
			p.State = types.StateAssigning
			p.AssignedAt = now

		case types.StateAssigned:
			if p.SessionID == want {
				continue
			}
			if _, ownerLive := live[p.SessionID]; !ownerLive {
				// Cleanup handles dead owners; never start a drain against one.
				continue
			}
			p.NextSessionID = want
			p.State = types.StateReassigning
			p.AssignedAt = now

		default:
			// In-flight transitions finish (or time out) before they move again.
			continue
		}

		if err := c.writePartition(ctx, p, e.revision); err != nil {
			if errors.Is(err, types.ErrConflict) {
				// A concurrent rebalance installed the same transition.
				continue
			}

			return moved, err
		}
		moved++
	}

	return moved, nil
}

// SessionLost records an observed session departure and rebalances.
// Called by the monitor; safe to call redundantly.
func (c *Coordinator) SessionLost(ctx context.Context, sessionID string) error {
	c.metrics.RecordSessionChange(-1)
	c.logger.Info("session lost", "subscription", c.cfg.SubscriptionID, "session", sessionID)

	return c.Rebalance(ctx)
}

// ReleaseSession gracefully disconnects a consumer session: its partitions
// return to the pool and the liveness marker is deleted via sess.Release.
func (c *Coordinator) ReleaseSession(ctx context.Context, sess *coordination.Session) error {
	if err := sess.Release(ctx); err != nil {
		return mapStoreError(err)
	}

	c.metrics.RecordSessionChange(-1)

	return c.Rebalance(ctx)
}
