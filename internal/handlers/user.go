package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
)

// UserHandler provides the profile endpoints.
type UserHandler struct {
	auth *services.AuthService
}

func NewUserHandler(auth *services.AuthService) *UserHandler {
	return &UserHandler{auth: auth}
}

// UserRouter registers user routes on the given router. All routes require
// an authenticated session.
func UserRouter(r chi.Router, auth *services.AuthService, requireAuth func(http.Handler) http.Handler) {
	handler := NewUserHandler(auth)

	r.Use(requireAuth)
	r.Get("/me", handler.Me)
	r.Patch("/me", handler.UpdateProfile)
	r.Post("/me/password", handler.ChangePassword)
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type profileUpdateRequest struct {
	Nickname           *string `json:"nickname"`
	Status             *string `json:"status"`
	Email              *string `json:"email"`
	Address            *string `json:"address"`
	Phone              *string `json:"phone"`
	EmailNotifyEnabled any     `json:"email_notify_enabled"`
}

// UpdateProfile applies a partial profile update.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.auth.UpdateProfile(r.Context(), user.ID, services.ProfileUpdate{
		Nickname:           req.Nickname,
		Status:             req.Status,
		Email:              req.Email,
		Address:            req.Address,
		Phone:              req.Phone,
		EmailNotifyEnabled: req.EmailNotifyEnabled,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type changePasswordResponse struct {
	Token string `json:"token"`
}

// ChangePassword rotates the password and returns a fresh session token.
// Every other session dies with the version bump.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	token, err := h.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changePasswordResponse{Token: token})
}
