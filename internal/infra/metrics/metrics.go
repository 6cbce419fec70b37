// Package metrics exposes the runtime's Prometheus collectors.
//
// All recording methods are nil-safe so components can take an optional
// *Metrics without guarding every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector registered by the runtime.
type Metrics struct {
	// Turns counts finished turns. Labels: status (completed|max_iterations|failed|cancelled).
	Turns *prometheus.CounterVec
	// Iterations observes generation rounds per turn.
	Iterations prometheus.Histogram
	// ToolExecutions counts tool calls. Labels: tool, status (success|failure).
	ToolExecutions *prometheus.CounterVec
	// ToolDuration observes tool latency in seconds. Labels: tool.
	ToolDuration *prometheus.HistogramVec
	// Classifications counts router decisions. Labels: agent, mode (scored|explicit|fallback).
	Classifications *prometheus.CounterVec
	// EventsEmitted counts bus events. Labels: type, mode (batched|immediate).
	EventsEmitted *prometheus.CounterVec
	// GenerationErrors counts backend failures. Labels: backend.
	GenerationErrors *prometheus.CounterVec
	// SkillMatches observes the number of skills injected per query.
	SkillMatches prometheus.Histogram
	// GatewayClients tracks connected websocket clients.
	GatewayClients prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_turns_total",
			Help: "Finished agent turns by terminal status",
		}, []string{"status"}),
		Iterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumen_turn_iterations",
			Help:    "Generation rounds per turn",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		ToolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_tool_executions_total",
			Help: "Tool executions by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumen_tool_duration_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_classifications_total",
			Help: "Task router decisions by chosen agent and mode",
		}, []string{"agent", "mode"}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_events_emitted_total",
			Help: "Events emitted on the bus by type and mode",
		}, []string{"type", "mode"}),
		GenerationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_generation_errors_total",
			Help: "Generation backend failures",
		}, []string{"backend"}),
		SkillMatches: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumen_skill_matches",
			Help:    "Skills returned per query",
			Buckets: []float64{0, 1, 2, 3, 5},
		}),
		GatewayClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_gateway_clients",
			Help: "Connected websocket clients",
		}),
	}
}

// TurnFinished records a finished turn.
func (m *Metrics) TurnFinished(status string, iterations int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(status).Inc()
	m.Iterations.Observe(float64(iterations))
}

// ToolExecuted records one tool call.
func (m *Metrics) ToolExecuted(tool string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// Classified records a router decision.
func (m *Metrics) Classified(agent, mode string, skills int) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(agent, mode).Inc()
	m.SkillMatches.Observe(float64(skills))
}

// EventEmitted records one bus emission.
func (m *Metrics) EventEmitted(eventType string, immediate bool) {
	if m == nil {
		return
	}
	mode := "batched"
	if immediate {
		mode = "immediate"
	}
	m.EventsEmitted.WithLabelValues(eventType, mode).Inc()
}

// GenerationFailed records a backend failure.
func (m *Metrics) GenerationFailed(backend string) {
	if m == nil {
		return
	}
	m.GenerationErrors.WithLabelValues(backend).Inc()
}

// ClientConnected adjusts the websocket client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.GatewayClients.Add(float64(delta))
}
