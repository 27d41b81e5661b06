package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
)

// LetterHandler exposes letter sending and replying.
type LetterHandler struct {
	letters *services.LetterService
}

func NewLetterHandler(letters *services.LetterService) *LetterHandler {
	return &LetterHandler{letters: letters}
}

// LetterRouter registers letter routes on the given router.
func LetterRouter(r chi.Router, letters *services.LetterService, requireAuth func(http.Handler) http.Handler) {
	handler := NewLetterHandler(letters)

	r.Use(requireAuth)
	r.Post("/", handler.Send)
	r.Post("/{letterID}/reply", handler.Reply)
}

type sendLetterRequest struct {
	ToID    int    `json:"to_id"`
	Title   string `json:"title"`
	Emotion string `json:"emotion"`
	Content string `json:"content"`
}

// Send stores a new letter and notifies the recipient.
func (h *LetterHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req sendLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	letter, err := h.letters.Send(r.Context(), user.ID, req.ToID, req.Title, req.Emotion, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, letter)
}

type replyRequest struct {
	Content string `json:"content"`
}

// Reply records a reply to a received letter.
func (h *LetterHandler) Reply(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	letterID, err := strconv.Atoi(chi.URLParam(r, "letterID"))
	if err != nil || letterID < 1 {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.letters.Reply(r.Context(), letterID, user.ID, req.Content); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "replied"})
}
