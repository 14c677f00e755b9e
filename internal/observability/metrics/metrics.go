// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consult_speech_pipeline"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Segment metrics
	SegmentsCaptured  prometheus.Counter
	SegmentsCoalesced prometheus.Counter
	SegmentsRejected  *prometheus.CounterVec
	SegmentBytes      prometheus.Counter

	// Remote call metrics
	RemoteRequests *prometheus.CounterVec
	RemoteErrors   *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec

	// Translation metrics
	TranslationFallbacks prometheus.Counter
	TranslationSkipped   prometheus.Counter

	// Transcript metrics
	ResultsPartial prometheus.Counter
	ResultsFinal   prometheus.Counter

	// Stream metrics
	StreamEvents        prometheus.Counter
	StreamEventsDropped prometheus.Counter
	StreamReconnects    prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of capture sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active capture sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of capture sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		SegmentsCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_captured_total",
			Help:      "Total number of audio segments produced by capture",
		}),
		SegmentsCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_coalesced_total",
			Help:      "Total number of backlogged segments coalesced to the newest",
		}),
		SegmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      "Total number of segments rejected before submission",
		}, []string{"reason"}),
		SegmentBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_total",
			Help:      "Total encoded audio bytes captured",
		}),

		RemoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total number of requests to remote services",
		}, []string{"service"}),
		RemoteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Total number of remote service errors",
		}, []string{"service", "error_type"}),
		RemoteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_latency_seconds",
			Help:      "Remote service request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"service"}),

		TranslationFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_fallbacks_total",
			Help:      "Total number of times the original text was kept after a translation failure",
		}),
		TranslationSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_skipped_total",
			Help:      "Total number of translation calls skipped by the language heuristic",
		}),

		ResultsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_partial_total",
			Help:      "Total number of partial transcription results reconciled",
		}),
		ResultsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_final_total",
			Help:      "Total number of final transcription results reconciled",
		}),

		StreamEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of events received on the push channel",
		}),
		StreamEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_dropped_total",
			Help:      "Total number of malformed push events dropped",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Total number of push channel reconnect attempts",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new capture session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a capture session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegmentCaptured records a segment produced by the capture session.
func (m *Metrics) RecordSegmentCaptured(bytes int) {
	m.SegmentsCaptured.Inc()
	m.SegmentBytes.Add(float64(bytes))
}

// RecordSegmentCoalesced records a backlogged segment replaced by a newer one.
func (m *Metrics) RecordSegmentCoalesced() {
	m.SegmentsCoalesced.Inc()
}

// RecordSegmentRejected records a segment rejected before submission.
func (m *Metrics) RecordSegmentRejected(reason string) {
	m.SegmentsRejected.WithLabelValues(reason).Inc()
}

// RecordRemoteCall records a request to a remote service.
func (m *Metrics) RecordRemoteCall(service string, err error, latencySeconds float64) {
	m.RemoteRequests.WithLabelValues(service).Inc()
	m.RemoteLatency.WithLabelValues(service).Observe(latencySeconds)
	if err != nil {
		m.RemoteErrors.WithLabelValues(service, "request").Inc()
	}
}

// RecordRemoteError records a categorized remote service error.
func (m *Metrics) RecordRemoteError(service, errorType string) {
	m.RemoteErrors.WithLabelValues(service, errorType).Inc()
}

// RecordTranslationFallback records keeping original text after a translation failure.
func (m *Metrics) RecordTranslationFallback() {
	m.TranslationFallbacks.Inc()
}

// RecordTranslationSkipped records a translation call skipped by the heuristic.
func (m *Metrics) RecordTranslationSkipped() {
	m.TranslationSkipped.Inc()
}

// RecordResult records a reconciled transcription result.
func (m *Metrics) RecordResult(final bool) {
	if final {
		m.ResultsFinal.Inc()
	} else {
		m.ResultsPartial.Inc()
	}
}

// RecordStreamEvent records an event received on the push channel.
func (m *Metrics) RecordStreamEvent() {
	m.StreamEvents.Inc()
}

// RecordStreamEventDropped records a malformed push event dropped.
func (m *Metrics) RecordStreamEventDropped() {
	m.StreamEventsDropped.Inc()
}

// RecordStreamReconnect records a push channel reconnect attempt.
func (m *Metrics) RecordStreamReconnect() {
	m.StreamReconnects.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
