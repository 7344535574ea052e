package types

// SubscriptionEventTypeStats is the derived, non-persisted per-event-type
// view of a subscription's consumption state. It is recomputed fresh on
// every stats request and never cached.
type SubscriptionEventTypeStats struct {
	// EventType is the event type the partitions below belong to.
	EventType string `json:"event_type"`

	// Partitions holds one entry per materialized partition; empty when the
	// coordinator has never been initialized for the subscription.
	Partitions []PartitionStats `json:"partitions"`
}

// PartitionStats is the stats view of a single partition.
type PartitionStats struct {
	// Partition is the topic engine's partition identifier.
	Partition string `json:"partition"`

	// State is the assignment state label ("assigned", "unassigned", ...).
	State string `json:"state"`

	// UnconsumedEvents is the consumer lag: the topic's newest offset minus
	// the last committed offset, clamped to zero.
	UnconsumedEvents int64 `json:"unconsumed_events"`

	// StreamID is the session currently responsible for the partition,
	// empty when unowned.
	StreamID string `json:"stream_id,omitempty"`
}
