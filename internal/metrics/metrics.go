package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voxscribe"

// Metrics holds the dictation runtime collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted      *prometheus.CounterVec
	Onsets               prometheus.Counter
	StateTransitions     *prometheus.CounterVec
	TranscriptionsTotal  *prometheus.CounterVec
	TranscriptionSeconds prometheus.Histogram
	SinkDeliveries       *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_sessions_started_total",
			Help:      "Capture sessions started, by recording mode",
		}, []string{"mode"}),
		Onsets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_onsets_total",
			Help:      "Speech onsets reported by the voice listener",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Orchestrator state transitions, by target state",
		}, []string{"state"}),
		TranscriptionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription calls, by outcome",
		}, []string{"outcome"}),
		TranscriptionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Time spent waiting for the transcription service",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SinkDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      "Transcript deliveries, by sink and outcome",
		}, []string{"sink", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordOnset() {
	if m == nil {
		return
	}
	m.Onsets.Inc()
}

func (m *Metrics) RecordState(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// RecordTranscription records one transcription call with its outcome
// (ok, empty, failed).
func (m *Metrics) RecordTranscription(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionsTotal.WithLabelValues(outcome).Inc()
	m.TranscriptionSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordSinkDelivery(sink string, success bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	m.SinkDeliveries.WithLabelValues(sink, outcome).Inc()
}
