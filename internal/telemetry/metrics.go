package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the assistant.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesTotal    *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	fallbacksTotal   *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	droppedReplies   prometheus.Counter
}

// NewMetrics creates a metrics set registered on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airbnb_messages_total",
			Help: "Inbound messages by schema.",
		}, []string{"schema"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airbnb_tool_calls_total",
			Help: "Tool server calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airbnb_tool_call_duration_seconds",
			Help:    "Tool server call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airbnb_fallbacks_total",
			Help: "Fallback searches by trigger.",
		}, []string{"reason"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airbnb_rate_limited_total",
			Help: "Messages rejected by sender quota.",
		}, []string{"schema"}),
		droppedReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airbnb_dropped_replies_total",
			Help: "Extraction replies dropped because the session was already answered.",
		}),
	}
	m.registry.MustRegister(
		m.messagesTotal,
		m.toolCallsTotal,
		m.toolCallDuration,
		m.fallbacksTotal,
		m.rateLimitedTotal,
		m.droppedReplies,
		collectors.NewGoCollector(),
	)
	return m
}

// RecordMessage counts an inbound message.
func (m *Metrics) RecordMessage(schema string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(schema).Inc()
}

// RecordToolCall records the outcome and latency of a tool call.
func (m *Metrics) RecordToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordFallback counts a fallback search.
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimited counts a message rejected by quota.
func (m *Metrics) RecordRateLimited(schema string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(schema).Inc()
}

// RecordDroppedReply counts an extraction reply that lost the claim race.
func (m *Metrics) RecordDroppedReply() {
	if m == nil {
		return
	}
	m.droppedReplies.Inc()
}

// Handler returns an HTTP handler serving the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
