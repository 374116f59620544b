package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"kasirkredit/backend/internal/report"
)

func (a *API) handleOverdueInstallments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.OverdueSweep(r.Context(), q.Get("as_of"), strings.TrimSpace(q.Get("customer_id")), parsePositiveLimit(q.Get("limit"), 200, 1000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDueSoon(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, _ := strconv.Atoi(strings.TrimSpace(q.Get("days")))
	resp, err := a.service.DueSoon(r.Context(), q.Get("as_of"), days, strings.TrimSpace(q.Get("customer_id")), parsePositiveLimit(q.Get("limit"), 200, 1000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDebtSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := a.service.DebtSummary(r.Context(), actorFrom(r), strings.TrimSpace(q.Get("store_id")), q.Get("as_of"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTopDebtors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	debtors, err := a.service.TopDebtors(r.Context(), q.Get("as_of"), parsePositiveLimit(q.Get("limit"), 10, 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debtors": debtors})
}

func (a *API) handleOverdueWorkbook(w http.ResponseWriter, r *http.Request) {
	data, fileName, err := a.service.ExportOverdueWorkbook(r.Context(), actorFrom(r), r.URL.Query().Get("as_of"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", report.XLSXMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleArchiveOverdueWorkbook(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ArchiveOverdueWorkbook(r.Context(), actorFrom(r), r.URL.Query().Get("as_of"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
