package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirkredit/backend/internal/archive"
	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/metrics"
	"kasirkredit/backend/internal/report"
	"kasirkredit/backend/internal/service"
	"kasirkredit/backend/internal/store"
	"kasirkredit/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, a real AuthManager
// and a real Service so handler tests exercise the whole request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWith(t, service.Options{})
}

func newTestAPIWith(t *testing.T, opts service.Options) *API {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	repo := memory.NewSeeded()
	m := metrics.New()
	opts.DefaultStoreID = "test-store"
	opts.Logger = logger
	opts.Metrics = m
	svc := service.New(repo, opts)
	auth := NewAuthManager(AuthConfig{
		Secret:         "test-secret-key",
		TokenTTL:       time.Hour,
		ManagerPIN:     "123456",
		DefaultStoreID: "test-store",
	}, repo)

	return New(svc, auth, "*", logger, m)
}

type session struct {
	t          *testing.T
	handler    http.Handler
	token      string
	csrf       string
	remoteAddr string
}

func newSession(t *testing.T, api *API, username, password string) *session {
	t.Helper()
	resp := login(t, api, username, password)
	return &session{
		t:       t,
		handler: api.Handler(),
		token:   resp.AccessToken,
		csrf:    resp.CSRFToken,
	}
}

func (s *session) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	if s.remoteAddr != "" {
		req.RemoteAddr = s.remoteAddr
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestAPI(t).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{"/api/v1/credits", "/api/v1/installments/overdue", "/api/v1/customers"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCashierCannotUseAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "cashier", "cashier123")

	for _, path := range []string{"/api/v1/reports/debt-summary", "/api/v1/audit-logs", "/api/v1/users/cashiers"} {
		assert.Equal(t, http.StatusForbidden, cashier.do(http.MethodGet, path, nil).Code, path)
	}
	rec := cashier.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{
		DocumentType: "dni", DocumentNumber: "45678912", FullName: "Rosa Quispe",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cashier.do(http.MethodPost, "/api/v1/credits/crd-x/void", map[string]string{"reason": "x", "manager_pin": "123456"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreditLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")
	cashier := newSession(t, api, "cashier", "cashier123")

	rec := admin.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{
		DocumentType: "dni", DocumentNumber: "45678912", FullName: "Rosa Quispe", Phone: "987654321",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decodeBody[map[string]domain.Customer](t, rec)["customer"]
	require.NotEmpty(t, customer.ID)

	rec = cashier.do(http.MethodGet, "/api/v1/customers/lookup?document_type=dni&document_number=45678912", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, customer.ID, decodeBody[map[string]domain.Customer](t, rec)["customer"].ID)

	rec = cashier.do(http.MethodPost, "/api/v1/credits", domain.CreditCreateRequest{
		CustomerID:       customer.ID,
		SaleReference:    "sale-001",
		SaleTotalCents:   100000,
		DownPaymentCents: 10000,
		InstallmentCount: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.CreditResponse](t, rec)
	credit := created.Credit
	require.Len(t, credit.Installments, 3)
	assert.Equal(t, int64(90000), credit.OutstandingCents)
	assert.Equal(t, domain.CreditStatusActive, credit.Status)

	paymentPath := "/api/v1/credits/" + credit.ID + "/payments"
	payment := domain.PaymentRequest{IdempotencyKey: "till-1-0001", AmountCents: 40000, Method: "cash"}

	rec = cashier.do(http.MethodPost, paymentPath, payment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	applied := decodeBody[domain.PaymentResponse](t, rec)
	assert.Equal(t, int64(50000), applied.OutstandingCents)
	require.Len(t, applied.Payment.Allocations, 2)
	assert.False(t, applied.Duplicate)

	rec = cashier.do(http.MethodPost, paymentPath, payment)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replayed := decodeBody[domain.PaymentResponse](t, rec)
	assert.True(t, replayed.Duplicate)
	assert.Equal(t, applied.Payment.ID, replayed.Payment.ID)
	assert.Equal(t, int64(50000), replayed.OutstandingCents)

	payment.AmountCents = 1
	assert.Equal(t, http.StatusConflict, cashier.do(http.MethodPost, paymentPath, payment).Code)

	rec = cashier.do(http.MethodPost, paymentPath, domain.PaymentRequest{IdempotencyKey: "till-1-0002", AmountCents: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = cashier.do(http.MethodGet, "/api/v1/payments/idempotency/till-1-0001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decodeBody[domain.PaymentLookupResponse](t, rec)
	assert.True(t, lookup.Found)

	rec = cashier.do(http.MethodGet, "/api/v1/payments/"+applied.Payment.ID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[domain.ReceiptResponse](t, rec).EscposBase64)

	// Second installment falls due 60 days out and has 20000 left after the
	// first payment.
	asOf := ledger.Day(time.Now()).AddDate(0, 0, 75).Format("2006-01-02")
	rec = cashier.do(http.MethodGet, "/api/v1/installments/overdue?as_of="+asOf, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sweep := decodeBody[domain.SweepResponse](t, rec)
	require.Len(t, sweep.Installments, 1)
	assert.Equal(t, 2, sweep.Installments[0].Sequence)
	assert.Equal(t, 15, sweep.Installments[0].DaysOverdue)
	assert.Equal(t, int64(20000), sweep.TotalPendingCents)
	assert.Equal(t, 1, sweep.TotalRows)
	assert.False(t, sweep.Truncated)

	rec = cashier.do(http.MethodGet, fmt.Sprintf("/api/v1/credits/%s?as_of=%s", credit.ID, asOf), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[domain.CreditResponse](t, rec)
	assert.Equal(t, domain.InstallmentStatusOverdue, detail.Credit.Installments[1].Status)

	rec = admin.do(http.MethodGet, "/api/v1/reports/overdue.xlsx?as_of="+asOf, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.XLSXMediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "overdue_"+asOf+".xlsx")

	rec = admin.do(http.MethodPost, "/api/v1/reports/overdue/archive?as_of="+asOf, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = admin.do(http.MethodPost, "/api/v1/credits/"+credit.ID+"/void", map[string]string{"reason": "returned goods", "manager_pin": "123456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CreditStatusVoid, decodeBody[domain.VoidCreditResponse](t, rec).Status)

	rec = cashier.do(http.MethodGet, "/api/v1/credits/"+credit.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	voided := decodeBody[domain.CreditResponse](t, rec).Credit
	assert.Equal(t, domain.InstallmentStatusPaid, voided.Installments[0].Status)
	for _, inst := range voided.Installments[1:] {
		assert.Equal(t, domain.InstallmentStatusCancelled, inst.Status)
		assert.Zero(t, inst.PendingCents)
	}

	rec = cashier.do(http.MethodPost, paymentPath, domain.PaymentRequest{IdempotencyKey: "till-1-0003", AmountCents: 100})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	admin.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kasirkredit_payments_total{method="cash",replay="true"} 1`)
	assert.Contains(t, rec.Body.String(), `kasirkredit_credit_transitions_total{status="void"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/credits/{creditID}/payments"`)
}

func TestUnknownCreditIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "cashier", "cashier123")

	assert.Equal(t, http.StatusNotFound, cashier.do(http.MethodGet, "/api/v1/credits/crd-missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, cashier.do(http.MethodGet, "/api/v1/credits/crd-missing/payments", nil).Code)
	assert.Equal(t, http.StatusNotFound, cashier.do(http.MethodGet, "/api/v1/nothing-here", nil).Code)
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad", ledger.ErrInvalidSchedule), http.StatusBadRequest},
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{store.ErrInvalidInput, http.StatusBadRequest},
		{ledger.ErrCreditNotActive, http.StatusConflict},
		{ledger.ErrInvalidStateTransition, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{archive.ErrDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("apply: %w", ledger.ErrAllocationInvariant), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestInternalErrorsHideCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, fmt.Errorf("apply: %w", ledger.ErrAllocationInvariant))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody[map[string]string](t, rec)["error"])
}
