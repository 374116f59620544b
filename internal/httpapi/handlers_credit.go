package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kasirkredit/backend/internal/domain"
)

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	customers, err := a.service.ListCustomers(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleLookupCustomer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customer, err := a.service.LookupCustomerByDocument(r.Context(), q.Get("document_type"), q.Get("document_number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleResolveCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.FindOrCreateCustomer(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCustomerDebt(w http.ResponseWriter, r *http.Request) {
	debt, err := a.service.CustomerDebt(r.Context(), chi.URLParam(r, "customerID"), r.URL.Query().Get("as_of"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (a *API) handleCreateCredit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateCredit(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListCredits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListCredits(r.Context(), domain.CreditFilter{
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Status:     strings.TrimSpace(q.Get("status")),
		Limit:      parsePositiveLimit(q.Get("limit"), 50, 200),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetCredit(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetCredit(r.Context(), chi.URLParam(r, "creditID"), r.URL.Query().Get("as_of"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVoidCredit requires the manager PIN on top of the admin role. PIN
// attempts are rate limited per account.
func (a *API) handleVoidCredit(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidCreditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := actorFrom(r)
	if ok, wait := a.pinLimiter.Allow(voidAttemptKey(actor)); !ok {
		writeTooManyAttempts(w, wait, "too many manager pin attempts")
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}

	req.CreditID = chi.URLParam(r, "creditID")
	resp, err := a.service.VoidCredit(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
