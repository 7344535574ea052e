package nakadi

import "github.com/akinjanata/nakadi/types"

type serviceOptions struct {
	logger   types.Logger
	metrics  types.MetricsCollector
	strategy types.AssignmentStrategy
}

// Option configures optional Service collaborators.
type Option func(*serviceOptions)

// WithLogger sets the logger used by the service and the coordinators it
// creates. Defaults to a no-op logger.
func WithLogger(logger types.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *serviceOptions) {
		o.metrics = collector
	}
}

// WithStrategy sets the partition assignment strategy used by coordinators.
// Defaults to the sticky strategy.
func WithStrategy(strategy types.AssignmentStrategy) Option {
	return func(o *serviceOptions) {
		o.strategy = strategy
	}
}
