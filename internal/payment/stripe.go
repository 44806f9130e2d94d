// Package payment adapts Stripe Checkout to the booking flow: it creates
// a checkout for a pending session and turns signed webhook deliveries
// into completed-payment notices.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// MetadataSessionID is the checkout metadata key holding our session id.
const MetadataSessionID = "celestia_session_id"

// ErrInvalidSignature is returned for webhook payloads that fail
// signature or timestamp verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Checkout is a hosted payment page created for one session.
type Checkout struct {
	ID  string `json:"checkout_id"`
	URL string `json:"checkout_url"`
}

// Completed reports a paid checkout.  SessionID may be empty when the
// checkout carried no metadata; PaymentRef is then the only link.
type Completed struct {
	SessionID  string
	PaymentRef string
}

// Gateway is the payment provider seen by the HTTP layer.
type Gateway interface {
	CreateCheckout(ctx context.Context, s model.Session, productName string) (Checkout, error)
	// ParseWebhook verifies and decodes a delivery.  It returns nil and
	// no error for events that do not complete a payment.
	ParseWebhook(payload []byte, signature string) (*Completed, error)
}

// StripeConfig configures StripeGateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	api *client.API
	cfg StripeConfig
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{api: client.New(cfg.SecretKey, nil), cfg: cfg}
}

// CreateCheckout opens a one-item payment checkout for the session's
// frozen amount.
func (g *StripeGateway) CreateCheckout(ctx context.Context, s model.Session, productName string) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(s.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(productName),
				},
				UnitAmount: stripe.Int64(int64(s.AmountCents)),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata(MetadataSessionID, s.ID)

	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("create checkout: %w", err)
	}
	return Checkout{ID: cs.ID, URL: cs.URL}, nil
}

// ParseWebhook implements Gateway.  Only checkout.session.completed with
// payment_status=paid yields a Completed.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Completed, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != "checkout.session.completed" || event.Data == nil {
		return nil, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	done := &Completed{SessionID: cs.Metadata[MetadataSessionID], PaymentRef: cs.ID}
	if done.SessionID == "" {
		done.SessionID = cs.ClientReferenceID
	}
	return done, nil
}
