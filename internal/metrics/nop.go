// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/akinjanata/nakadi/types"

// NopCollector implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopCollector struct{}

// Compile-time assertion that NopCollector implements MetricsCollector.
var _ types.MetricsCollector = (*NopCollector)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopCollector: A new no-op metrics collector instance
func NewNop() *NopCollector {
	return &NopCollector{}
}

// RecordSubscriptionCreated discards the subscription creation metric.
func (n *NopCollector) RecordSubscriptionCreated(_ /* created */ bool) {
	// No-op
}

// RecordRebalance discards the rebalance metric.
func (n *NopCollector) RecordRebalance(_ /* sessions */, _ /* partitions */, _ /* moved */ int) {
	// No-op
}

// RecordOffsetCommit discards the offset commit metric.
func (n *NopCollector) RecordOffsetCommit(_ /* accepted */ bool) {
	// No-op
}

// RecordSessionChange discards the session change metric.
func (n *NopCollector) RecordSessionChange(_ /* delta */ int) {
	// No-op
}

// RecordStatsQuery discards the stats query metric.
func (n *NopCollector) RecordStatsQuery(_ /* partitions */ int, _ /* totalLag */ int64) {
	// No-op
}
