// Package handler contains the HTTP handlers for the Snaplist API.
//
// Every endpoint speaks JSON. Errors are rendered as a structured body with
// a machine-readable code and, for quota and rate denials, a reason subcode.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/ratelimit"
)

// ErrorResponse writes a JSON error response, mapping domain error codes to
// HTTP status codes.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, status)
	writeJSONError(w, status, code, domain.ErrorReason(err), domain.ErrorMessage(err))
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.EUPSTREAM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// logError logs with a level matching the status class. 4xx responses are
// expected client behavior and stay at info.
func logError(logger *slog.Logger, r *http.Request, err error, code string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}

	if status >= 500 {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, reason, message string) {
	body := JSONError{}
	body.Error.Code = code
	body.Error.Reason = reason
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// JSONError is the response structure for API errors. The window fields are
// set only on gateway denials, where they mirror the X-RateLimit headers.
type JSONError struct {
	Error struct {
		Code       string            `json:"code"`
		Reason     string            `json:"reason,omitempty"`
		Message    string            `json:"message"`
		Fields     map[string]string `json:"fields,omitempty"`
		Limit      *int              `json:"limit,omitempty"`
		Remaining  *int              `json:"remaining,omitempty"`
		RetryAfter *int              `json:"retry_after,omitempty"`
		ResetsAt   *time.Time        `json:"resets_at,omitempty"`
	} `json:"error"`
}

// RateLimitErrorResponse writes a gateway denial whose body carries the
// binding window's state, so clients that never read headers still get the
// numbers they need to back off or upsell.
func RateLimitErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, res ratelimit.Result) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	logError(logger, r, err, code, status)

	retryAfter := int(res.RetryAfter(time.Now().UTC()).Seconds())

	body := JSONError{}
	body.Error.Code = code
	body.Error.Reason = domain.ErrorReason(err)
	body.Error.Message = domain.ErrorMessage(err)
	body.Error.Limit = &res.Limit
	body.Error.Remaining = &res.Remaining
	body.Error.RetryAfter = &retryAfter
	body.Error.ResetsAt = &res.ResetAt

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ValidationErrorResponse writes field-level validation errors.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, fields map[string]string) {
	logger.Info("validation error", "op", op, "field_count", len(fields), "path", r.URL.Path)

	body := JSONError{}
	body.Error.Code = domain.EINVALID
	body.Error.Message = "Validation failed"
	body.Error.Fields = fields

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(body)
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}
