package types

// MetricsCollector receives operational metrics from the library.
//
// Implementations must be safe for concurrent use. A no-op implementation is
// used when no collector is configured, so instrumented code never needs nil
// checks.
type MetricsCollector interface {
	// RecordSubscriptionCreated counts creation requests; created is false
	// for idempotent hits on an existing subscription.
	RecordSubscriptionCreated(created bool)

	// RecordRebalance counts a completed rebalance pass with the number of
	// live sessions, total partitions, and partitions that changed owner.
	RecordRebalance(sessions, partitions, moved int)

	// RecordOffsetCommit counts offset commits; accepted is false for
	// stale (non-monotonic) commits applied as no-ops.
	RecordOffsetCommit(accepted bool)

	// RecordSessionChange counts session joins (delta > 0) and losses
	// (delta < 0) observed by the coordinator monitor.
	RecordSessionChange(delta int)

	// RecordStatsQuery observes a stats aggregation with the total lag
	// reported across partitions.
	RecordStatsQuery(partitions int, totalLag int64)
}
