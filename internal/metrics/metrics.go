package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kasirkredit"

// Metrics holds the collectors of one process. A nil *Metrics records
// nothing, so callers never need to check for it.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	payments        *prometheus.CounterVec
	paymentCents    *prometheus.CounterVec
	credits         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments handled, split by method and whether the request was a replay.",
		}, []string{"method", "replay"}),
		paymentCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_cents_total",
			Help:      "Money received, split into applied and excess cents.",
		}, []string{"kind"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_transitions_total",
			Help:      "Credits created, completed and voided.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.payments,
		m.paymentCents,
		m.credits,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) PaymentApplied(method string, replay bool, appliedCents int64, excessCents int64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, strconv.FormatBool(replay)).Inc()
	if replay {
		return
	}
	m.paymentCents.WithLabelValues("applied").Add(float64(appliedCents))
	if excessCents > 0 {
		m.paymentCents.WithLabelValues("excess").Add(float64(excessCents))
	}
}

func (m *Metrics) CreditTransition(status string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(status).Inc()
}
