package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mindvoyage/apiserver/internal/services"
	"github.com/mindvoyage/apiserver/types"
)

// AuthHandler provides the signup, login and email verification endpoints.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth *services.AuthService) {
	handler := NewAuthHandler(auth)

	r.Post("/email/code/request", handler.RequestSignupCode)
	r.Post("/email/code/verify", handler.VerifySignupCode)
	r.Post("/signup", handler.CompleteSignup)
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/verify-email", handler.VerifyEmail)
	r.Post("/resend-verification", handler.ResendVerification)
}

// RequireAuth resolves the bearer token to a live user and injects it into
// the request context.
func RequireAuth(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Authenticate distinguishes a bad token from a deleted
			// account and from a store failure; each keeps its own status.
			user, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				writeServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

// RequestSignupCode mails a one-time code to an unregistered address.
func (h *AuthHandler) RequestSignupCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.auth.RequestSignupCode(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type verifyCodeResponse struct {
	SignupToken string `json:"signup_token"`
}

// VerifySignupCode checks a code and returns the signup token on success.
func (h *AuthHandler) VerifySignupCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	token, err := h.auth.VerifySignupCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyCodeResponse{SignupToken: token})
}

// CompleteSignup creates a verified account from a signup token.
func (h *AuthHandler) CompleteSignup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.CompleteSignup(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Register creates an unverified account and mails a verification link.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token         string     `json:"token"`
	User          types.User `json:"user"`
	AttendedToday bool       `json:"attended_today"`
}

// Login authenticates credentials and returns a session token. The response
// reports whether this login was the first attendance mark of the day.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Nickname, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:         result.Token,
		User:          result.User,
		AttendedToday: result.AttendedToday,
	})
}

// VerifyEmail consumes a verification link. Revisits are reported as
// already-verified rather than failing.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	alreadyVerified, err := h.auth.VerifyEmailToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := "verified"
	if alreadyVerified {
		status = "already_verified"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ResendVerification re-sends the verification link mail.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
