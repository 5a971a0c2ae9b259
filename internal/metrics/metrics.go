package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookEventsTotal     *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Outbound send metrics
	SendRequestsTotal   *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec

	// NLU engine metrics
	EngineTurnsTotal   *prometheus.CounterVec
	EngineTurnDuration prometheus.Histogram
	EngineActionsTotal *prometheus.CounterVec

	// Session metrics
	SessionsLive    prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEvicted prometheus.Counter

	// Security metrics
	SignatureFailuresTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// Dedup metrics
	DuplicateEventsTotal prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		WebhookEventsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_webhook_events_total",
				Help: "Total number of webhook events by type and status",
			},
			[]string{"event_type", "status"}, // event_type: text, attachment, echo, other
		),

		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aoybot_webhook_duration_seconds",
				Help:    "Webhook event processing duration in seconds by event type",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"event_type"},
		),

		SendRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_send_requests_total",
				Help: "Total number of Send API requests by kind and status",
			},
			[]string{"kind", "status"}, // kind: text, raw, action, thread_control
		),

		SendDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aoybot_send_duration_seconds",
				Help:    "Send API request duration in seconds by kind",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		),

		EngineTurnsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_engine_turns_total",
				Help: "Total number of NLU engine turns by status",
			},
			[]string{"status"}, // status: success, error, timeout
		),

		EngineTurnDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aoybot_engine_turn_duration_seconds",
				Help:    "Duration of a full NLU action loop turn in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		EngineActionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_engine_actions_total",
				Help: "Total number of catalog actions invoked by the engine",
			},
			[]string{"action", "status"},
		),

		SessionsLive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "aoybot_sessions_live",
				Help: "Current number of live sessions in the store",
			},
		),

		SessionsCreated: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "aoybot_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),

		SessionsEvicted: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "aoybot_sessions_evicted_total",
				Help: "Total number of sessions evicted by the expiry sweep",
			},
		),

		SignatureFailuresTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_signature_failures_total",
				Help: "Total number of webhook signature failures by reason",
			},
			[]string{"reason"}, // reason: missing, mismatch, malformed
		),

		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aoybot_rate_limiter_dropped_total",
				Help: "Total number of events dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user
		),

		DuplicateEventsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "aoybot_duplicate_events_total",
				Help: "Total number of redelivered events skipped by dedup",
			},
		),
	}

	return m
}

// RecordWebhookEvent records a processed webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, status string, durationSeconds float64) {
	m.WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
	if durationSeconds > 0 {
		m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(durationSeconds)
	}
}

// RecordSend records an outbound Send API request.
func (m *Metrics) RecordSend(kind, status string, durationSeconds float64) {
	m.SendRequestsTotal.WithLabelValues(kind, status).Inc()
	m.SendDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordEngineTurn records a completed NLU engine turn.
func (m *Metrics) RecordEngineTurn(status string, durationSeconds float64) {
	m.EngineTurnsTotal.WithLabelValues(status).Inc()
	m.EngineTurnDuration.Observe(durationSeconds)
}

// RecordAction records a catalog action invocation.
func (m *Metrics) RecordAction(action, status string) {
	m.EngineActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordSignatureFailure records a webhook signature failure.
func (m *Metrics) RecordSignatureFailure(reason string) {
	m.SignatureFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimiterDrop records an event dropped due to rate limiting.
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}
