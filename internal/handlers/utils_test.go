package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindvoyage/apiserver/internal/services"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: &services.DomainError{Kind: services.KindValidation, Message: "bad"}, wantStatus: http.StatusBadRequest},
		{name: "not found", err: &services.DomainError{Kind: services.KindNotFound, Message: "missing"}, wantStatus: http.StatusNotFound},
		{name: "unauthorized", err: &services.DomainError{Kind: services.KindUnauthorized, Message: "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "forbidden", err: &services.DomainError{Kind: services.KindForbidden, Message: "no"}, wantStatus: http.StatusForbidden},
		{name: "conflict", err: &services.DomainError{Kind: services.KindConflict, Message: "dup"}, wantStatus: http.StatusConflict},
		{name: "opaque error", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteServiceErrorRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, &services.DomainError{
		Kind:       services.KindRateLimited,
		Message:    "slow down",
		RetryAfter: 42,
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "slow down", body.Error)
	assert.Equal(t, 42, body.RetryAfter)
}

func TestOpaqueErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, assert.AnError)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		want      string
		wantError bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "missing header", header: "", wantError: true},
		{name: "wrong scheme", header: "Basic abc", wantError: true},
		{name: "empty token", header: "Bearer  ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := bearerToken(r)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
