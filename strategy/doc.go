// Package strategy provides built-in assignment strategy implementations.
//
// Assignment strategies determine how partitions are distributed across
// consumer sessions. The package includes two built-in strategies:
//
//   - Sticky: Even distribution with minimal movement (the default)
//   - HashRing: Consistent hashing with virtual nodes
//
// # Strategy Selection Guide
//
// Sticky:
//   - Guarantees session partition counts differ by at most one
//   - Keeps existing owners wherever the balance allows
//   - Use unless placement affinity matters more than strict balance
//
// HashRing:
//   - Placement follows the hash of the partition key, so a partition maps
//     to the same session regardless of assignment history
//   - Distribution is only statistically even, not strictly balanced
//   - Use when consumers keep per-partition state worth preserving across
//     disconnects
//
// Custom strategies can be implemented by satisfying the
// types.AssignmentStrategy interface. Strategies must be deterministic;
// the coordinator resolves concurrent rebalances by recomputation, not
// locking.
package strategy
