package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/archive"
	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/metrics"
	"kasirkredit/backend/internal/service"
	"kasirkredit/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
	log           logrus.FieldLogger
	metrics       *metrics.Metrics
}

// New builds the HTTP API. A nil m disables the /metrics endpoint.
func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger logrus.FieldLogger, m *metrics.Metrics) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
		log:           logger.WithField("component", "http"),
		metrics:       m,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(a.secure)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth(roleCashier, roleAdmin))
		r.Use(a.requireCSRF)

		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Get("/customers", a.handleListCustomers)
		r.With(a.requireRole(roleAdmin)).Post("/customers", a.handleCreateCustomer)
		r.Get("/customers/lookup", a.handleLookupCustomer)
		r.Post("/customers/resolve", a.handleResolveCustomer)
		r.Get("/customers/{customerID}", a.handleGetCustomer)
		r.Get("/customers/{customerID}/debt", a.handleCustomerDebt)

		r.Get("/credits", a.handleListCredits)
		r.Post("/credits", a.handleCreateCredit)
		r.Get("/credits/{creditID}", a.handleGetCredit)
		r.Get("/credits/{creditID}/payments", a.handleListPayments)
		r.Post("/credits/{creditID}/payments", a.handleApplyPayment)
		r.With(a.requireRole(roleAdmin)).Post("/credits/{creditID}/void", a.handleVoidCredit)

		r.Get("/payments/idempotency/{key}", a.handlePaymentLookup)
		r.Get("/payments/{paymentID}/receipt", a.handlePaymentReceipt)

		r.Get("/installments/overdue", a.handleOverdueInstallments)
		r.Get("/installments/due-soon", a.handleDueSoon)

		r.Group(func(r chi.Router) {
			r.Use(a.requireRole(roleAdmin))
			r.Get("/reports/debt-summary", a.handleDebtSummary)
			r.Get("/reports/top-debtors", a.handleTopDebtors)
			r.Get("/reports/overdue.xlsx", a.handleOverdueWorkbook)
			r.Post("/reports/overdue/archive", a.handleArchiveOverdueWorkbook)
			r.Get("/audit-logs", a.handleAuditLogs)
			r.Get("/users/cashiers", a.handleListCashiers)
			r.Post("/users/cashiers", a.handleCreateCashier)
		})
	})

	return r
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorContextKey{}).(domain.Actor)
	return actor
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

// requireRole narrows an already authenticated route to the given roles.
func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isRoleAllowed(actorFrom(r).Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLogin opens a store-scoped session. The response carries the CSRF
// token for the session so clients can post payments right away.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if ok, wait := a.loginLimiter.Allow(clientKey(r)); !ok {
		writeTooManyAttempts(w, wait, "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, err := a.auth.Authenticate(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	token, expiresAt, err := a.auth.Issue(actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		CSRFToken:   a.issueCSRFToken(actor),
		Role:        actor.Role,
		StoreID:     actor.StoreID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

// handleCSRFToken renews the session's CSRF token for the current hour.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.issueCSRFToken(actorFrom(r)),
	})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context(), actorFrom(r).StoreID)})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), actorFrom(r), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrConflict) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), actorFrom(r), strings.TrimSpace(q.Get("store_id")), q.Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

// secure sets security and CORS headers, caps JSON bodies and answers
// preflight requests.
func (a *API) secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		a.metrics.ObserveRequest(r.Method, route, ww.Status(), time.Since(startedAt))
		a.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(startedAt).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

// statusFor maps ledger and store errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOutsideStore):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidSchedule),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrCreditNotActive),
		errors.Is(err, ledger.ErrInvalidStateTransition),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, archive.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrRegistryUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	case http.StatusBadGateway:
		logrus.WithError(err).Warn("upstream registry error")
		writeJSON(w, status, map[string]any{"error": service.ErrRegistryUnavailable.Error()})
		return
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the cause of 5xx responses from the client and logs it.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		logrus.WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
