package metrics

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestExposerServesTextFormatOverRawTCP(t *testing.T) {
	reg := New("coregate_test")
	cmMetrics := NewConnectionManagerMetrics(reg)
	cmMetrics.RecordConnectionStarted(0, time.Millisecond)

	exposer := NewExposer(reg)
	require.NoError(t, exposer.Start("127.0.0.1:0"))
	defer exposer.Stop()

	addr := exposer.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /metrics HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)

	blank, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", blank)

	var body strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		body.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, body.String(), "coregate_test_connection_manager_connection_started_latency_milliseconds")
}

func TestCompactFamilyKeepsAtLeastOneMember(t *testing.T) {
	zero := 0.0
	family := &dto.MetricFamily{
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: &zero}},
			{Counter: &dto.Counter{Value: &zero}},
		},
	}
	compactFamily(family)
	assert.Len(t, family.GetMetric(), 1)
}

func TestCompactFamilyKeepsNonEmptyMembers(t *testing.T) {
	zero, one := 0.0, 1.0
	family := &dto.MetricFamily{
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: &zero}},
			{Counter: &dto.Counter{Value: &one}},
		},
	}
	compactFamily(family)
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, one, family.GetMetric()[0].GetCounter().GetValue())
}
