package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
	"github.com/mindvoyage/apiserver/types"
)

// AttendanceHandler exposes the attendance calendar.
type AttendanceHandler struct {
	attendance *services.AttendanceService
}

func NewAttendanceHandler(attendance *services.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// AttendanceRouter registers attendance routes on the given router.
func AttendanceRouter(r chi.Router, attendance *services.AttendanceService, requireAuth func(http.Handler) http.Handler) {
	handler := NewAttendanceHandler(attendance)

	r.Use(requireAuth)
	r.Get("/today", handler.Today)
	r.Get("/calendar", handler.Calendar)
}

type todayResponse struct {
	Date     string         `json:"date"`
	Attended bool           `json:"attended"`
	Detail   types.DayBlock `json:"detail"`
}

// Today returns today's local date and its attendance detail.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	date, block, err := h.attendance.TodayDetail(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todayResponse{
		Date:     date,
		Attended: block.Attended,
		Detail:   block,
	})
}

// Calendar returns the attendance summary for a month (?month=YYYY-MM) or an
// explicit range (?start=YYYY-MM-DD&end=YYYY-MM-DD).
func (h *AttendanceHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	query := r.URL.Query()
	from, to, err := services.ResolveRange(query.Get("month"), query.Get("start"), query.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	summary, err := h.attendance.Range(r.Context(), user.ID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
