package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors fed from pipeline events.
type Metrics struct {
	RoutingDecisions   *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	ValidationOutcomes *prometheus.CounterVec
	StageLatency       *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datagenie",
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Backend calls by backend, reason and outcome",
		}, []string{"backend", "reason", "outcome"}),

		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datagenie",
			Subsystem: "router",
			Name:      "backend_latency_seconds",
			Help:      "Latency of individual backend calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"backend"}),

		ValidationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datagenie",
			Subsystem: "pipeline",
			Name:      "results_total",
			Help:      "Final request status by first issue code",
		}, []string{"status", "code"}),

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datagenie",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stages",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"stage"}),
	}
}

// MetricsSink updates Metrics from events.
type MetricsSink struct {
	m *Metrics
}

// NewMetricsSink creates a sink recording into m.
func NewMetricsSink(m *Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

// Emit implements Sink.
func (s *MetricsSink) Emit(e Event) {
	switch e.Name() {
	case EventRoutingDecision:
		backend := e.String(FieldBackend)
		s.m.RoutingDecisions.WithLabelValues(backend, e.String(FieldReason), e.String(FieldOutcome)).Inc()
		if ms, ok := e.Float(FieldLatencyMS); ok {
			s.m.BackendLatency.WithLabelValues(backend).Observe(ms / 1000)
		}
	case EventStage:
		if ms, ok := e.Float(FieldLatencyMS); ok {
			s.m.StageLatency.WithLabelValues(e.String(FieldStage)).Observe(ms / 1000)
		}
	case EventRequestDone:
		s.m.ValidationOutcomes.WithLabelValues(e.String(FieldStatus), e.String(FieldCode)).Inc()
	}
}
