package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EUPSTREAM, http.StatusBadGateway},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestErrorResponse(t *testing.T) {
	t.Run("quota denial carries the reason subcode", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/analyze", nil)
		err := domain.QuotaExceeded("quota.consume_creations",
			domain.ReasonCreationQuotaExceeded, "You are out of creations for today.")

		ErrorResponse(w, r, testLogger(), err)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		body := decodeError(t, w)
		assert.Equal(t, domain.EPAYMENT, body.Error.Code)
		assert.Equal(t, domain.ReasonCreationQuotaExceeded, body.Error.Reason)
		assert.Equal(t, "You are out of creations for today.", body.Error.Message)
	})

	t.Run("internal details never reach the client", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/quota", nil)
		err := domain.Internal(errors.New("pq: connection refused"), "quota.snapshot", "failed to load quota")

		ErrorResponse(w, r, testLogger(), err)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, domain.EINTERNAL, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "connection refused")
		assert.NotContains(t, body.Error.Message, "failed to load quota")
	})

	t.Run("plain errors map to internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)

		ErrorResponse(w, r, testLogger(), errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, domain.EINTERNAL, decodeError(t, w).Error.Code)
	})

	t.Run("reason is omitted when empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/listings/abc", nil)

		ErrorResponse(w, r, testLogger(), domain.NotFound("listing.get", "Listing", "abc"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotContains(t, w.Body.String(), "reason")
	})
}

func TestRateLimitErrorResponse(t *testing.T) {
	t.Run("denial body carries the window numbers", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/analyze", nil)
		res := ratelimit.Result{
			Limit:     5,
			Remaining: 0,
			ResetAt:   time.Now().UTC().Add(10 * time.Minute),
		}

		RateLimitErrorResponse(w, r, testLogger(), domain.RateLimited("ratelimit.analyze_admission"), res)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, domain.ERATELIMIT, body.Error.Code)
		assert.Equal(t, domain.ReasonRateLimited, body.Error.Reason)
		require.NotNil(t, body.Error.Limit)
		assert.Equal(t, 5, *body.Error.Limit)
		require.NotNil(t, body.Error.Remaining)
		assert.Equal(t, 0, *body.Error.Remaining)
		require.NotNil(t, body.Error.RetryAfter)
		assert.Greater(t, *body.Error.RetryAfter, 0)
		assert.LessOrEqual(t, *body.Error.RetryAfter, 600)
		require.NotNil(t, body.Error.ResetsAt)
		assert.WithinDuration(t, res.ResetAt, *body.Error.ResetsAt, time.Second)
	})

	t.Run("anonymous daily denial keeps the quota status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/analyze", nil)
		res := ratelimit.Result{
			Limit:     10,
			Remaining: 0,
			ResetAt:   time.Now().UTC().Add(time.Hour),
		}
		err := domain.QuotaExceeded("ratelimit.analyze_admission",
			domain.ReasonAnonymousDailyLimit, "Daily free analysis limit reached.")

		RateLimitErrorResponse(w, r, testLogger(), err, res)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, domain.ReasonAnonymousDailyLimit, body.Error.Reason)
		require.NotNil(t, body.Error.Limit)
		assert.Equal(t, 10, *body.Error.Limit)
	})
}

func TestValidationErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/listings", nil)

	ValidationErrorResponse(w, r, testLogger(), "listing.create", map[string]string{
		"title":     "failed required validation",
		"condition": "failed oneof validation",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, domain.EINVALID, body.Error.Code)
	assert.Len(t, body.Error.Fields, 2)
	assert.Contains(t, body.Error.Fields, "title")
}
