// Package metrics provides Prometheus instrumentation for the conversation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts webhook calls by channel and outcome.
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_webhook_requests_total",
			Help: "Webhook requests by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// PayloadsSkipped counts inbound events dropped before processing.
	PayloadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_payloads_skipped_total",
			Help: "Inbound events skipped by reason",
		},
		[]string{"channel", "reason"},
	)

	// SendAttempts counts outbound send attempts by result.
	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_send_attempts_total",
			Help: "Outbound send attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	// QualityFlags counts guard quality flags.
	QualityFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_reply_quality_flags_total",
			Help: "Reply quality flags raised by the guard pipeline",
		},
		[]string{"channel", "flag"},
	)

	// ModelFallbacks counts turns answered with the fallback line.
	ModelFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_model_fallbacks_total",
			Help: "Model calls resolved to the fallback reply",
		},
		[]string{"channel", "reason"},
	)

	// ModelLatency tracks model call duration.
	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesbot_model_latency_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"channel"},
	)

	// FollowUpsSent counts follow-up nudges delivered.
	FollowUpsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_followups_sent_total",
			Help: "Follow-up nudges sent",
		},
		[]string{"channel"},
	)

	// Leads counts lead capture decisions.
	Leads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_leads_total",
			Help: "Lead capture results",
		},
		[]string{"channel", "result"},
	)
)

// RecordSkipped increments the skipped-payload counter.
func RecordSkipped(channel, reason string) {
	PayloadsSkipped.WithLabelValues(channel, reason).Inc()
}

// RecordSend increments the send counter.
func RecordSend(channel, result string) {
	SendAttempts.WithLabelValues(channel, result).Inc()
}

// RecordQualityFlags increments one counter per flag.
func RecordQualityFlags(channel string, flags []string) {
	for _, flag := range flags {
		QualityFlags.WithLabelValues(channel, flag).Inc()
	}
}
