package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TurnFinished("completed", 2)
	m.TurnFinished("completed", 1)
	m.ToolExecuted("calculate", true, 20*time.Millisecond)
	m.ToolExecuted("calculate", false, time.Millisecond)
	m.Classified("data-analyst", "scored", 2)
	m.EventEmitted("text.delta", false)
	m.EventEmitted("status.changed", true)
	m.GenerationFailed("ollama")
	m.ClientConnected(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutions.WithLabelValues("calculate", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("data-analyst", "scored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("status.changed", "immediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationErrors.WithLabelValues("ollama")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayClients))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TurnFinished("failed", 1)
		m.ToolExecuted("create_file", true, time.Second)
		m.Classified("general", "fallback", 0)
		m.EventEmitted("plan.started", true)
		m.GenerationFailed("scripted")
		m.ClientConnected(-1)
	})
}
