package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/ratelimit"
)

// RespondJSON writes a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response", "error", err)
	}
}

// SetRateLimitHeaders surfaces the binding window's state on the response.
func SetRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// SetRetryAfterHeader adds Retry-After for denied requests.
func SetRetryAfterHeader(w http.ResponseWriter, res ratelimit.Result) {
	secs := int(res.RetryAfter(time.Now().UTC()).Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

// QuotaBody is the usage block embedded in quota-aware responses.
type QuotaBody struct {
	Creations domain.AllowanceUsage `json:"creations"`
	Saves     domain.AllowanceUsage `json:"saves"`
	IsPro     bool                  `json:"is_pro"`
	ResetsAt  time.Time             `json:"resets_at"`
}

// NewQuotaBody converts a snapshot into the HTTP usage block. ResetsAt is
// the next UTC midnight, when the daily allowance replenishes.
func NewQuotaBody(s *domain.QuotaSnapshot) QuotaBody {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return QuotaBody{
		Creations: s.CreationUsage(),
		Saves:     s.SaveUsage(),
		IsPro:     s.IsPro,
		ResetsAt:  midnight,
	}
}
