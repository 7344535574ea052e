package types

// AssignmentStrategy calculates which consumer session owns each partition.
//
// Implementations must be deterministic: given the same sessions, partitions,
// and current ownership, every caller computes the same target assignment.
// The coordinator relies on this to let concurrent rebalance passes converge
// instead of fighting over compare-and-swap writes.
type AssignmentStrategy interface {
	// Assign maps every partition to exactly one of the given sessions.
	//
	// Parameters:
	//   - sessions: IDs of the live consumer sessions
	//   - partitions: Keys of all partitions of the subscription
	//   - current: Current owner per partition; partitions without a live
	//     owner are absent from the map
	//
	// Returns:
	//   - map[PartitionKey]string: Target owner session per partition,
	//     covering every input partition
	//   - error: Assignment error (e.g. no sessions available)
	Assign(sessions []string, partitions []PartitionKey, current map[PartitionKey]string) (map[PartitionKey]string, error)
}
