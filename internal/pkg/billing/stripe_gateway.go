package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Gateway is the part of Stripe the checkout flow talks to.
type Gateway interface {
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CompletedCheckout, error)
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
	PublicKey() string
}

// StripeConfig carries the Stripe keys.
type StripeConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
}

// StripeGateway talks to the Stripe API with stripe-go.
type StripeGateway struct {
	cfg    StripeConfig
	client *stripe.Client
}

// NewStripeGateway configures stripe-go with the secret key.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	stripe.Key = cfg.SecretKey
	return &StripeGateway{
		cfg:    cfg,
		client: stripe.NewClient(cfg.SecretKey),
	}
}

func (g *StripeGateway) PublicKey() string {
	return g.cfg.PublicKey
}

func (g *StripeGateway) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	s, err := session.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return nil, fmt.Errorf("stripe: %s", stripeErr.Msg)
		}
		return nil, err
	}
	return s, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*CompletedCheckout, error) {
	s, err := g.client.V1CheckoutSessions.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	out := &CompletedCheckout{
		StripeSessionID:   s.ID,
		ClientReferenceID: s.ClientReferenceID,
		CustomerEmail:     s.CustomerEmail,
		Mode:              string(s.Mode),
		Status:            string(s.Status),
		PaymentStatus:     string(s.PaymentStatus),
	}
	if s.Customer != nil {
		out.Customer = s.Customer.ID
	}
	if s.Subscription != nil {
		out.Subscription = s.Subscription.ID
	}
	if s.CustomerDetails != nil {
		out.CustomerDetails = &struct {
			Email string `json:"email"`
		}{Email: s.CustomerDetails.Email}
	}
	return out, nil
}

// ConstructEvent verifies the Stripe-Signature header against the payload.
// API version mismatches are tolerated.
func (g *StripeGateway) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func decodeEventObject(event stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("event %s has no data object", event.ID)
	}
	return json.Unmarshal(event.Data.Raw, v)
}
