package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mindvoyage/apiserver/internal/services"
	"github.com/mindvoyage/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the uniform error payload. RetryAfter is only present on
// rate-limited responses.
type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service-layer error onto an HTTP response. Domain
// errors carry their own status; anything else is a 500 with a generic body.
func writeServiceError(w http.ResponseWriter, err error) {
	var domain *services.DomainError
	if !errors.As(err, &domain) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch domain.Kind {
	case services.KindValidation:
		writeError(w, http.StatusBadRequest, domain.Message)
	case services.KindNotFound:
		writeError(w, http.StatusNotFound, domain.Message)
	case services.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, domain.Message)
	case services.KindForbidden:
		writeError(w, http.StatusForbidden, domain.Message)
	case services.KindConflict:
		writeError(w, http.StatusConflict, domain.Message)
	case services.KindRateLimited:
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:      domain.Message,
			RetryAfter: domain.RetryAfter,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
