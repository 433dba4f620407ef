package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Command("TAG", true)
	m.Command("TAG", true)
	m.Command("TAG", false)
	m.RelayEntry(RelayApplied)
	m.RelayEntry(RelayDuplicate)
	m.OracleRequest(OracleFallback)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("TAG", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("TAG", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayEntries.WithLabelValues(RelayApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleRequests.WithLabelValues(OracleFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Command("PING", true)
		m.RelayEntry(RelayFailed)
		m.RelayCycle(time.Second)
		m.OracleRequest(OracleOK)
		m.ConnOpened()
		m.ConnClosed()
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Command("PING", true)
	m.RelayCycle(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `metad_commands_total{command="PING",status="ok"} 1`)
	assert.Contains(t, string(body), `metad_relay_cycle_seconds_count 1`)
}
