package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akinjanata/nakadi/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	subscriptionsCreated *prometheus.CounterVec
	rebalances           prometheus.Counter
	rebalanceMoved       prometheus.Histogram
	liveSessions         prometheus.Gauge
	offsetCommits        *prometheus.CounterVec
	statsQueries         prometheus.Counter
	statsLag             prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "nakadi" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "nakadi"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.subscriptionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "create_requests_total",
			Help:      "Total subscription creation requests by outcome (created/existing).",
		}, []string{"created"})

		p.rebalances = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "rebalances_total",
			Help:      "Total completed rebalance passes.",
		})

		p.rebalanceMoved = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "rebalance_moved_partitions",
			Help:      "Partitions that changed owner per rebalance pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		})

		p.liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "sessions_live",
			Help:      "Net number of live consumer sessions observed.",
		})

		p.offsetCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "offset_commits_total",
			Help:      "Total offset commits by outcome (accepted/stale).",
		}, []string{"accepted"})

		p.statsQueries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "stats",
			Name:      "queries_total",
			Help:      "Total subscription stats queries served.",
		})

		p.statsLag = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "stats",
			Name:      "reported_lag_events",
			Help:      "Total unconsumed events reported per stats query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		})

		p.reg.MustRegister(
			p.subscriptionsCreated,
			p.rebalances,
			p.rebalanceMoved,
			p.liveSessions,
			p.offsetCommits,
			p.statsQueries,
			p.statsLag,
		)
	})
}

// RecordSubscriptionCreated counts a creation request.
func (p *PrometheusCollector) RecordSubscriptionCreated(created bool) {
	p.ensureRegistered()
	p.subscriptionsCreated.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// RecordRebalance counts a completed rebalance pass.
func (p *PrometheusCollector) RecordRebalance(_ /* sessions */, _ /* partitions */, moved int) {
	p.ensureRegistered()
	p.rebalances.Inc()
	p.rebalanceMoved.Observe(float64(moved))
}

// RecordOffsetCommit counts an offset commit.
func (p *PrometheusCollector) RecordOffsetCommit(accepted bool) {
	p.ensureRegistered()
	p.offsetCommits.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

// RecordSessionChange tracks the net number of live sessions.
func (p *PrometheusCollector) RecordSessionChange(delta int) {
	p.ensureRegistered()
	p.liveSessions.Add(float64(delta))
}

// RecordStatsQuery observes a stats aggregation.
func (p *PrometheusCollector) RecordStatsQuery(_ /* partitions */ int, totalLag int64) {
	p.ensureRegistered()
	p.statsQueries.Inc()
	p.statsLag.Observe(float64(totalLag))
}
