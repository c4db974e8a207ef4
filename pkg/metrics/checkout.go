package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout stage outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeDeclined = "declined"
	OutcomeAction   = "requires_action"
)

// CheckoutMetrics tracks the checkout funnel and webhook traffic.
type CheckoutMetrics struct {
	stages   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	webhooks *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout funnel metrics on reg. A nil reg
// yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	stages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "stage_total",
		Help:      "Checkout stage results.",
	}, []string{"stage", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "stage_duration_seconds",
		Help:      "Time spent calling the upstream for a checkout stage.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Webhook deliveries by source and result.",
	}, []string{"source", "result"})
	reg.MustRegister(stages, duration, webhooks)
	return &CheckoutMetrics{stages: stages, duration: duration, webhooks: webhooks}
}

// ObserveStage records one stage result and how long its upstream call took.
func (m *CheckoutMetrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil || m.stages == nil {
		return
	}
	m.stages.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(stage)).Observe(elapsed.Seconds())
}

// IncWebhook counts a webhook delivery.
func (m *CheckoutMetrics) IncWebhook(source, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}
