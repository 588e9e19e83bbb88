package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the domain counters exposed on /metrics.
type Metrics struct {
	Debits         *prometheus.CounterVec
	Credits        *prometheus.CounterVec
	CASRetries     *prometheus.CounterVec
	Unlocks        prometheus.Counter
	WebhookEvents  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Debits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealforge_credit_debits_total",
			Help: "Credit debits by outcome.",
		}, []string{"outcome"}),
		Credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealforge_credit_grants_total",
			Help: "Credit grants by mode and outcome.",
		}, []string{"mode", "outcome"}),
		CASRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealforge_balance_cas_retries_total",
			Help: "Optimistic-concurrency retries on the balance row.",
		}, []string{"op"}),
		Unlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealforge_achievement_unlocks_total",
			Help: "Achievement unlock records created.",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealforge_billing_webhook_events_total",
			Help: "Billing webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealforge_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mealforge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		m.Debits,
		m.Credits,
		m.CASRetries,
		m.Unlocks,
		m.WebhookEvents,
		m.HTTPRequests,
		m.RequestSeconds,
	)
	return m
}
