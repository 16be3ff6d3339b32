package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported by the intelligence layer.
type Metrics struct {
	registry *prometheus.Registry

	EventsRecorded   prometheus.Counter
	EventsRejected   prometheus.Counter
	StorageFailures  *prometheus.CounterVec
	PatternMatches   *prometheus.CounterVec
	Predictions      *prometheus.CounterVec
	VoiceCommands    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
}

// New builds a Metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "events_recorded_total",
			Help:      "Events persisted by the event store.",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "events_rejected_total",
			Help:      "Producer payloads rejected by the parser.",
		}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "storage_failures_total",
			Help:      "Backend errors swallowed by the event store.",
		}, []string{"op"}),
		PatternMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "pattern_matches_total",
			Help:      "Detected pattern matches.",
		}, []string{"type"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "predictions_total",
			Help:      "Emitted predictions.",
		}, []string{"type"}),
		VoiceCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsmemory",
			Name:      "voice_commands_total",
			Help:      "Processed commands by resolved intent.",
		}, []string{"intent"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsmemory",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of analysis calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"analysis"}),
	}
	m.registry.MustRegister(
		m.EventsRecorded,
		m.EventsRejected,
		m.StorageFailures,
		m.PatternMatches,
		m.Predictions,
		m.VoiceCommands,
		m.AnalysisDuration,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StorageFailure counts a swallowed backend error. Safe on a nil receiver.
func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.StorageFailures.WithLabelValues(op).Inc()
}

// EventRecorded counts a persisted event. Safe on a nil receiver.
func (m *Metrics) EventRecorded() {
	if m == nil {
		return
	}
	m.EventsRecorded.Inc()
}

// EventRejected counts a rejected payload. Safe on a nil receiver.
func (m *Metrics) EventRejected() {
	if m == nil {
		return
	}
	m.EventsRejected.Inc()
}

// PatternMatched counts a detector hit. Safe on a nil receiver.
func (m *Metrics) PatternMatched(patternType string) {
	if m == nil {
		return
	}
	m.PatternMatches.WithLabelValues(patternType).Inc()
}

// Predicted counts an emitted prediction. Safe on a nil receiver.
func (m *Metrics) Predicted(predictionType string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(predictionType).Inc()
}

// VoiceCommand counts a processed command. Safe on a nil receiver.
func (m *Metrics) VoiceCommand(intent string) {
	if m == nil {
		return
	}
	m.VoiceCommands.WithLabelValues(intent).Inc()
}

// ObserveAnalysis records the duration of an analysis in seconds. Safe on a nil receiver.
func (m *Metrics) ObserveAnalysis(analysis string, seconds float64) {
	if m == nil {
		return
	}
	m.AnalysisDuration.WithLabelValues(analysis).Observe(seconds)
}
