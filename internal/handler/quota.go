package handler

import (
	"log/slog"
	"net/http"

	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/service"
)

// QuotaHandler exposes the caller's current allowances.
type QuotaHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quota service.QuotaService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{quota: quota, logger: logger}
}

// Get handles GET /api/quota. Reading the snapshot applies any pending daily
// reset, so the numbers returned are always current.
func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	snapshot, err := h.quota.GetSnapshot(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	RespondJSON(w, h.logger, http.StatusOK, NewQuotaBody(snapshot))
}
