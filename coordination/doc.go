// Package coordination provides the thin client over the hierarchical,
// watchable, strongly-consistent store backing partition coordination.
//
// The Store interface exposes only the primitives the coordinator needs:
// atomic create, compare-and-swap update, prefix listing, and change watches.
// Ephemeral liveness markers (sessions) are built on a TTL-scoped store and
// a background renewal loop.
//
// Three implementations are provided:
//   - NATSKV: NATS JetStream KeyValue buckets (primary)
//   - Etcd: etcd v3 with lease-based TTLs
//   - Memory: in-process store with TTL support, for tests
package coordination
