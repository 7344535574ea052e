// Package coordinator maintains the authoritative partition assignment state
// of one subscription and rebalances it as consumer sessions join and leave.
//
// All state lives in the coordination store: durable partition and offset
// records in a state store, ephemeral session markers in a TTL-scoped session
// store. Nothing cached in process memory is trusted across a disconnect;
// every operation re-reads from the store.
//
// Rebalancing is deterministic. Any number of coordinator instances
// observing the same session set compute the same target assignment, so no
// distributed lock is needed for the computation; individual partition
// transitions are written with compare-and-swap, and a lost write means
// another instance installed the identical transition first.
package coordinator
