package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/ferrostad/snaplist/internal/billing"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/metrics"
	"github.com/ferrostad/snaplist/internal/repository"
	"github.com/ferrostad/snaplist/internal/service"
)

// WebhookHandler processes Stripe events. The route is public; authentication
// is the webhook signature.
//
// Payment reconciliation is deliberately tolerant of redelivery: every grant
// goes through the idempotency key, so Stripe can retry an event any number
// of times without double-crediting.
type WebhookHandler struct {
	billing   billing.Service
	purchases service.PurchaseService
	profiles  repository.ProfileRepository
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. billingService may be nil
// when Stripe is not configured.
func NewWebhookHandler(
	billingService billing.Service,
	purchases service.PurchaseService,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		billing:   billingService,
		purchases: purchases,
		profiles:  profiles,
		logger:    logger,
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r.Context(), event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionChange(r.Context(), event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(r.Context(), event)
	default:
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	// Always 200 once the signature checked out. Processing failures are
	// logged and counted; a 5xx would only make Stripe hammer the endpoint
	// with an event we already know we cannot apply.
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) {
	eventType := string(event.Type)

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	// Subscription checkouts are handled by the subscription events.
	if session.Mode != stripe.CheckoutSessionModePayment {
		metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		return
	}

	rawUserID := session.Metadata[billing.MetaUserID]
	sku := session.Metadata[billing.MetaPackSKU]
	idempotencyKey := session.Metadata[billing.MetaIdempotencyKey]
	amountCents := int(session.AmountTotal)

	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("checkout session has no usable user_id metadata",
			"session_id", session.ID, "user_id", rawUserID)
		return
	}

	var grant *domain.GrantResult
	if sku != "" && idempotencyKey != "" {
		grant, err = h.purchases.ApplyPackCredits(ctx, userID, sku, idempotencyKey, amountCents, session.ID, session.Metadata)
	} else {
		// Degraded path: metadata is incomplete, infer the pack from the
		// amount and mark the grant as recovered.
		grant, err = h.purchases.RecoverGrant(ctx, userID, amountCents, session.ID)
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to apply purchase",
			"session_id", session.ID, "user_id", userID, "sku", sku, "error", err)
		return
	}

	metrics.WebhookEvents.WithLabelValues(eventType, "ok").Inc()
	if !grant.AlreadyApplied {
		metrics.PurchasesApplied.WithLabelValues(grant.SKU).Inc()
	}
}

func (h *WebhookHandler) handleSubscriptionChange(ctx context.Context, event stripe.Event) {
	eventType := string(event.Type)

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}
	if sub.Customer == nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	plan := domain.PlanFree
	if sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing {
		plan = domain.PlanPro
	}
	h.setPlanByCustomer(ctx, eventType, sub.Customer.ID, plan)
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	eventType := string(event.Type)

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}
	if sub.Customer == nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return
	}
	h.setPlanByCustomer(ctx, eventType, sub.Customer.ID, domain.PlanFree)
}

func (h *WebhookHandler) setPlanByCustomer(ctx context.Context, eventType, customerID string, plan domain.Plan) {
	user, err := h.profiles.GetByStripeCustomerID(ctx, customerID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		h.logger.Warn("subscription event for unknown customer", "customer_id", customerID)
		return
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to look up customer", "customer_id", customerID, "error", err)
		return
	}

	if err := h.profiles.SetPlan(ctx, user.ID, plan); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("failed to set plan", "user_id", user.ID, "plan", plan, "error", err)
		return
	}

	metrics.WebhookEvents.WithLabelValues(eventType, "ok").Inc()
	h.logger.Info("plan updated from subscription event", "user_id", user.ID, "plan", plan)
}
