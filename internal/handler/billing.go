package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/service"
)

// BillingHandler initiates credit pack checkouts.
type BillingHandler struct {
	purchases  service.PurchaseService
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. successURL and cancelURL
// are where Stripe sends the buyer after checkout.
func NewBillingHandler(purchases service.PurchaseService, successURL, cancelURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		purchases:  purchases,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

type checkoutRequest struct {
	SKU            string `json:"sku"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreateCheckout handles POST /api/billing/checkout. The client supplies the
// idempotency key so a retried request lands on the same purchase: a settled
// key returns the prior outcome instead of a second session.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_checkout"

	user := auth.GetUser(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid JSON payload"))
		return
	}
	if req.SKU == "" || req.IdempotencyKey == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "sku and idempotency_key are required"))
		return
	}

	result, err := h.purchases.CreateCheckout(r.Context(), user, req.SKU, req.IdempotencyKey, h.successURL, h.cancelURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	RespondJSON(w, h.logger, http.StatusOK, result)
}
