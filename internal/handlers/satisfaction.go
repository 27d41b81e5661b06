package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
)

// SatisfactionHandler records post-letter survey answers.
type SatisfactionHandler struct {
	satisfaction *services.SatisfactionService
}

func NewSatisfactionHandler(satisfaction *services.SatisfactionService) *SatisfactionHandler {
	return &SatisfactionHandler{satisfaction: satisfaction}
}

// SatisfactionRouter registers survey routes on the given router.
func SatisfactionRouter(r chi.Router, satisfaction *services.SatisfactionService, requireAuth func(http.Handler) http.Handler) {
	handler := NewSatisfactionHandler(satisfaction)

	r.Use(requireAuth)
	r.Post("/", handler.Submit)
}

type satisfactionRequest struct {
	LetterID int    `json:"letter_id"`
	Rating   int    `json:"rating"`
	Reason   string `json:"reason"`
}

// Submit stores one rating for a letter exchange.
func (h *SatisfactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req satisfactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	sat, err := h.satisfaction.Submit(r.Context(), user.ID, req.LetterID, req.Rating, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sat)
}
