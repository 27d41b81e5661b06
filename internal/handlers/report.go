package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
)

// ReportHandler exposes the monthly emotional report.
type ReportHandler struct {
	reports *services.ReportService
}

func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ReportRouter registers report routes on the given router.
func ReportRouter(r chi.Router, reports *services.ReportService, requireAuth func(http.Handler) http.Handler) {
	handler := NewReportHandler(reports)

	r.Use(requireAuth)
	r.Get("/monthly", handler.Monthly)
	r.Get("/monthly/all", handler.MonthlyStats)
	r.Post("/comment", handler.SaveComment)
}

// Monthly builds the report for ?year=&month=; both default to the current
// month when omitted.
func (h *ReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	year, month, ok := yearMonthParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "year and month must be numbers")
		return
	}

	report, err := h.reports.Monthly(r.Context(), user, year, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// MonthlyStats returns the per-month letter volume across the user's whole
// history.
func (h *ReportHandler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.reports.MonthlyStats(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type reportCommentRequest struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Comment string `json:"comment"`
}

// SaveComment upserts the user's reflection for a month.
func (h *ReportHandler) SaveComment(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req reportCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.reports.SaveComment(r.Context(), user.ID, req.Year, req.Month, req.Comment); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func yearMonthParams(r *http.Request) (year, month int, ok bool) {
	query := r.URL.Query()
	yearStr := query.Get("year")
	monthStr := query.Get("month")
	if yearStr == "" && monthStr == "" {
		return 0, 0, true
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, false
	}
	month, err = strconv.Atoi(monthStr)
	if err != nil {
		return 0, 0, false
	}
	return year, month, true
}
