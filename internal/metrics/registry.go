// Package metrics is the Metrics Surface (component E): a Prometheus
// registry wrapper plus a hand-rolled text-exposition HTTP acceptor,
// and the concrete ManagerMetrics/stateMetricsRecorder implementations
// internal/connmgr's interfaces ask for.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry owns a Prometheus registry and the metric handles registered
// against it. It is passed around the process the way the teacher passes
// its own metrics registry into each subsystem constructor.
type Registry struct {
	reg *prometheus.Registry

	connStates              *prometheus.GaugeVec
	connStartedLatencies    *prometheus.HistogramVec
	drainLatencies          *prometheus.HistogramVec
	drainedConnectionCounts *prometheus.HistogramVec
}

// New creates a Registry and registers every metric this core exports.
// namespace prefixes every metric name (e.g. "coregate").
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		connStates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection_manager",
			Name:      "clients",
			Help:      "Number of clients currently in each connection manager state.",
		}, []string{"state"}),
		connStartedLatencies: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection_manager",
			Name:      "connection_started_latency_milliseconds",
			Help:      "Time spent deciding whether to admit a new connection, by result.",
			Buckets:   powerOfTwoBuckets(),
		}, []string{"result"}),
		drainLatencies: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection_manager",
			Name:      "drain_local_client_latency_milliseconds",
			Help:      "Time spent draining a client's local connections, by result.",
			Buckets:   powerOfTwoBuckets(),
		}, []string{"result"}),
		drainedConnectionCounts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection_manager",
			Name:      "drain_connections_closed",
			Help:      "Number of local connections forcibly closed by one drain_and_disconnect_local call, by result.",
			Buckets:   decimalCompactBuckets(),
		}, []string{"result"}),
	}
}

// Registerer exposes the underlying Prometheus registerer for components
// (e.g. a grace-store-specific collector) that need to register their own
// metrics against the same registry.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying Prometheus gatherer, consumed by the
// Exposer's text serialization.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// decimalCompactBuckets is the literal sequence 10, 20, 40, ..., 327680
// from monitoring__buckets_exp2_compact: doubling from a decimal base
// rather than from 1, giving finer resolution at the low end than a
// pure power-of-two series over the same range.
func decimalCompactBuckets() []float64 {
	return []float64{
		10, 20, 40, 80, 160, 320,
		640, 1280, 2560, 5120, 10240, 20480,
		40960, 81920, 163840, 327680,
	}
}

// powerOfTwoBuckets is the literal sequence 1, 2, 4, ..., 2^30 from
// monitoring__buckets_exp2, used for both connection-manager latency
// histograms in the original.
func powerOfTwoBuckets() []float64 {
	return []float64{
		1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024,
		2048, 4096, 8192, 16384, 32768, 65536, 131072, 262144, 524288, 1048576,
		2097152, 4194304, 8388608, 16777216, 33554432, 67108864, 134217728,
		268435456, 536870912, 1073741824,
	}
}
