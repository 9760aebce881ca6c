package metrics

import (
	"time"

	"github.com/coregate/coregate/internal/connmgr"
)

// ConnectionManagerMetrics adapts a Registry to connmgr.ManagerMetrics,
// keeping connmgr itself free of any Prometheus import (see DESIGN.md).
type ConnectionManagerMetrics struct {
	reg *Registry
}

// NewConnectionManagerMetrics returns the connmgr.ManagerMetrics
// implementation backed by reg.
func NewConnectionManagerMetrics(reg *Registry) *ConnectionManagerMetrics {
	return &ConnectionManagerMetrics{reg: reg}
}

// RecordStateChange implements connmgr's stateMetricsRecorder interface;
// connection_manager_metrics.h increments the new state's gauge and
// decrements the old one rather than ever calling Set, so the same
// client is never double-counted across the instant of the transition.
func (m *ConnectionManagerMetrics) RecordStateChange(from, to connmgr.State) {
	m.reg.connStates.WithLabelValues(from.String()).Dec()
	m.reg.connStates.WithLabelValues(to.String()).Inc()
}

// RecordConnectionStarted implements connmgr.ManagerMetrics.
func (m *ConnectionManagerMetrics) RecordConnectionStarted(result connmgr.ConnectionStartedResult, elapsed time.Duration) {
	m.reg.connStartedLatencies.WithLabelValues(result.String()).Observe(float64(elapsed.Milliseconds()))
}

// RecordDrain implements connmgr.ManagerMetrics.
func (m *ConnectionManagerMetrics) RecordDrain(result connmgr.DrainResult, elapsed time.Duration) {
	m.reg.drainLatencies.WithLabelValues(result.String()).Observe(float64(elapsed.Milliseconds()))
}

// RecordDrainedConnectionCount implements connmgr.ManagerMetrics.
func (m *ConnectionManagerMetrics) RecordDrainedConnectionCount(result connmgr.DrainResult, count int) {
	m.reg.drainedConnectionCounts.WithLabelValues(result.String()).Observe(float64(count))
}
