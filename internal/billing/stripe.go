// Package billing provides the Stripe integration for credit pack purchases.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys attached to checkout sessions so webhook events can be
// correlated back to a user, pack, and dedup token.
const (
	MetaUserID         = "user_id"
	MetaPackSKU        = "pack_sku"
	MetaIdempotencyKey = "idempotency_key"
)

// CheckoutParams describes a pack checkout to create.
type CheckoutParams struct {
	CustomerID     string // existing Stripe customer, empty to create by email
	CustomerEmail  string
	PriceID        string // Stripe price for the pack
	UserID         string
	PackSKU        string
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
}

// CheckoutSession is the subset of the created session the caller needs.
type CheckoutSession struct {
	ID  string
	URL string
}

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a Stripe customer for the given email.
	CreateCustomer(email string) (string, error)

	// CreatePackCheckoutSession creates a one-time-payment Checkout session
	// for a credit pack, carrying correlation metadata for the webhook.
	CreatePackCheckoutSession(params CheckoutParams) (*CheckoutSession, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and
	// returns the parsed event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

type stripeService struct {
	webhookSecret string
}

// NewStripeService creates a new Stripe billing service.
// The secretKey authenticates API calls; the webhookSecret verifies incoming
// webhook signatures.
func NewStripeService(secretKey, webhookSecret string) Service {
	stripe.Key = secretKey
	return &stripeService{webhookSecret: webhookSecret}
}

func (s *stripeService) CreateCustomer(email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreatePackCheckoutSession(params CheckoutParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata: map[string]string{
			MetaUserID:         params.UserID,
			MetaPackSKU:        params.PackSKU,
			MetaIdempotencyKey: params.IdempotencyKey,
		},
	}
	if params.CustomerID != "" {
		sessionParams.Customer = stripe.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	sess, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}
