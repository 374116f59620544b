package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kasirkredit/backend/internal/domain"
)

func (a *API) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	req.CreditID = chi.URLParam(r, "creditID")

	resp, err := a.service.ApplyPayment(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListPayments(r.Context(), chi.URLParam(r, "creditID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePaymentLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupPaymentByIdempotency(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePaymentReceipt(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.BuildPaymentReceipt(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
