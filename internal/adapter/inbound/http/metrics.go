package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed at /metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ValidationResult *prometheus.CounterVec
	RateLimitDenials prometheus.Counter
}

// NewMetrics registers the keyforge collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyforge",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and outcome.",
		}, []string{"route", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keyforge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ValidationResult: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyforge",
			Name:      "validations_total",
			Help:      "Validate-key outcomes by result.",
		}, []string{"result"}),
		RateLimitDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "keyforge",
			Name:      "rate_limit_denials_total",
			Help:      "Validate-key calls denied for exceeding the per-minute threshold.",
		}),
	}
}
