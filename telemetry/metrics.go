package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/assistmesh/backend"
	"github.com/hupe1980/assistmesh/core"
)

const namespace = "assistmesh"

// Metrics collects assistant metrics on a dedicated registry. It satisfies
// agent.Observer and orchestrator.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	degraded     *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	ingested     *prometheus.CounterVec
}

// NewMetrics registers all collectors, including Go runtime and process
// collectors, on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled user messages by agent and outcome.",
		}, []string{"agent", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Latency of handled user messages.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by agent, tool and outcome.",
		}, []string{"agent", "tool", "outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_answers_total",
			Help:      "Answers produced after a capability was skipped or withdrawn.",
		}, []string{"agent"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_resolutions_total",
			Help:      "Backend resolutions by kind, backend and outcome.",
		}, []string{"kind", "backend", "outcome"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_ingest_documents_total",
			Help:      "Documents passed to knowledge ingestion by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns,
		m.turnDuration,
		m.toolCalls,
		m.degraded,
		m.resolutions,
		m.ingested,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTurn records a handled message.
func (m *Metrics) ObserveTurn(agentName, outcome string, d time.Duration) {
	m.turns.WithLabelValues(agentName, outcome).Inc()
	m.turnDuration.WithLabelValues(agentName).Observe(d.Seconds())
}

// ObserveToolCall records a tool invocation.
func (m *Metrics) ObserveToolCall(agentName, toolName string, err error) {
	m.toolCalls.WithLabelValues(agentName, toolName, outcome(err)).Inc()
}

// ObserveDegraded records a degraded answer.
func (m *Metrics) ObserveDegraded(agentName, _ string) {
	m.degraded.WithLabelValues(agentName).Inc()
}

// ObserveResolve records a backend resolution. It matches backend.Options.OnResolve.
func (m *Metrics) ObserveResolve(kind backend.Kind, backendName string, err error) {
	if errors.Is(err, core.ErrUnsupportedBackend) {
		m.resolutions.WithLabelValues(string(kind), "", "unsupported").Inc()
		return
	}
	m.resolutions.WithLabelValues(string(kind), backendName, outcome(err)).Inc()
}

// ObserveIngest records an ingestion batch.
func (m *Metrics) ObserveIngest(docs int, err error) {
	m.ingested.WithLabelValues(outcome(err)).Add(float64(docs))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
