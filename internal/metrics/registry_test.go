package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregate/coregate/internal/connmgr"
)

func TestConnectionManagerMetricsRecordStateChange(t *testing.T) {
	reg := New("coregate_test")
	m := NewConnectionManagerMetrics(reg)

	m.RecordStateChange(connmgr.Drained, connmgr.Activating)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() != "coregate_test_connection_manager_clients" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "state" && label.GetValue() == "activating" {
					found = true
					assert.Equal(t, float64(1), metric.GetGauge().GetValue())
				}
			}
		}
	}
	assert.True(t, found, "expected an activating-state gauge sample")
}

func TestConnectionManagerMetricsRecordLatencies(t *testing.T) {
	reg := New("coregate_test")
	m := NewConnectionManagerMetrics(reg)

	m.RecordConnectionStarted(connmgr.Allow, 5*time.Millisecond)
	m.RecordDrain(connmgr.DrainSuccess, 10*time.Millisecond)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
