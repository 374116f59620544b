package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
	m.PaymentApplied("cash", false, 100, 0)
	m.CreditTransition("void")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentCountersSkipReplayAmounts(t *testing.T) {
	m := New()
	m.PaymentApplied("cash", false, 40000, 0)
	m.PaymentApplied("cash", true, 40000, 0)
	m.PaymentApplied("card", false, 5000, 250)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("cash", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("cash", "false")))
	assert.Equal(t, 45000.0, testutil.ToFloat64(m.paymentCents.WithLabelValues("applied")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.paymentCents.WithLabelValues("excess")))
}

func TestHandlerExposesRequestMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/api/v1/credits/{creditID}/payments", http.StatusCreated, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	m.CreditTransition("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `kasirkredit_http_requests_total{method="POST",route="/api/v1/credits/{creditID}/payments",status="201"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, `kasirkredit_credit_transitions_total{status="completed"} 1`)
}
