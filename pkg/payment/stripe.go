package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/slotwise/slotwise-api/pkg/config"
)

// Stripe only accepts checkout session expirations between 30 minutes and
// 24 hours after creation.
const (
	MinSessionLifetime = 30 * time.Minute
	MaxSessionLifetime = 24 * time.Hour
)

// CheckoutRequest describes a single-item checkout to hand to the gateway.
type CheckoutRequest struct {
	// AmountMinor is the total charge in minor currency units (cents).
	AmountMinor int64
	Quantity    int64
	Currency    string
	ProductName string
	Description string
	// ExpiresAt closes the session on the gateway side, so payment cannot
	// be accepted after the local hold has been swept.
	ExpiresAt time.Time
	Metadata  map[string]string
}

// CheckoutIntent is the gateway session used to correlate the later callback.
type CheckoutIntent struct {
	Reference string `json:"reference"`
	URL       string `json:"url"`
}

// GatewayError carries the gateway's own message so callers can surface it verbatim.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s", e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// CheckoutClient is the boundary to the external checkout provider.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutIntent, error)
}

// StripeClient implements CheckoutClient against Stripe Checkout Sessions.
// The credential is injected at construction; there is no package-level client.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeClient builds a checkout client from payments configuration.
func NewStripeClient(cfg config.PaymentsConfig) *StripeClient {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeClient{
		api:        api,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

// CreateCheckout opens a hosted checkout session for a single line item.
func (s *StripeClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutIntent, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return nil, &GatewayError{Message: stripeErr.Msg, Err: err}
		}
		return nil, &GatewayError{Message: err.Error(), Err: err}
	}

	return &CheckoutIntent{Reference: session.ID, URL: session.URL}, nil
}

// VerifyWebhook validates the gateway callback signature and decodes the event.
func VerifyWebhook(payload []byte, signature, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return stripe.Event{}, &GatewayError{Message: "invalid webhook signature", Err: err}
	}
	return event, nil
}
