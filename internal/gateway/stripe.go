package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"food-order-service/config"
	"food-order-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = 1 << 16

// StripeProvider uses Checkout Sessions. The order number travels as
// client_reference_id; the session id is the transaction reference.
type StripeProvider struct {
	sessions      *session.Client
	webhookSecret string
	currency      string
}

func NewStripeProvider(cfg config.GatewayConfig) *StripeProvider {
	return newStripeProvider(stripe.GetBackend(stripe.APIBackend), cfg)
}

func newStripeProvider(backend stripe.Backend, cfg config.GatewayConfig) *StripeProvider {
	return &StripeProvider{
		sessions:      &session.Client{B: backend, Key: cfg.StripeSecretKey},
		webhookSecret: cfg.StripeWebhook,
		currency:      strings.ToLower(cfg.Currency),
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

// minorUnits converts an amount to the smallest currency unit.
func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func (p *StripeProvider) Initiate(ctx context.Context, req *InitRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderNumber),
		SuccessURL:        stripe.String(req.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(req.CancelURL + "?order=" + req.OrderNumber),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Food order " + req.OrderNumber),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	params.AddMetadata("order_number", req.OrderNumber)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &Session{URL: s.URL, SessionID: s.ID}, nil
}

// ParseCallback accepts either a signed webhook (Stripe-Signature header) or
// a browser redirect carrying session_id or order in the query string. Only
// signed webhooks set Callback.Status.
func (p *StripeProvider) ParseCallback(r *http.Request) (*Callback, error) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		cb := &Callback{
			OrderNumber: r.URL.Query().Get("order"),
			Ref:         r.URL.Query().Get("session_id"),
		}
		if cb.OrderNumber == "" && cb.Ref == "" {
			return nil, fmt.Errorf("callback carries neither order nor session_id")
		}
		return cb, nil
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse webhook session: %w", err)
	}
	return &Callback{
		OrderNumber: s.ClientReferenceID,
		Ref:         s.ID,
		Status:      string(event.Type),
	}, nil
}

// Validate retrieves the session from the Stripe API. Redirect and webhook
// payloads are never used for the outcome. A cancel redirect carries only the
// order number, which Stripe cannot confirm; the session settles later through
// the checkout.session.expired webhook.
func (p *StripeProvider) Validate(ctx context.Context, cb *Callback) (*Validation, error) {
	if cb.Ref == "" {
		return nil, ErrUnknownTransaction
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.sessions.Get(cb.Ref, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("stripe session %s: %w", cb.Ref, ErrUnknownTransaction)
		}
		return nil, fmt.Errorf("stripe session lookup: %w", err)
	}

	outcome := stripeOutcome(s)
	if outcome == OutcomePending && s.Status == stripe.CheckoutSessionStatusComplete &&
		cb.Status == "checkout.session.async_payment_failed" {
		outcome = OutcomeFailed
	}

	return &Validation{
		OrderNumber:   s.ClientReferenceID,
		TransactionID: s.ID,
		Outcome:       outcome,
		Amount:        decimal.New(s.AmountTotal, -2),
		Currency:      strings.ToUpper(string(s.Currency)),
		Metadata: models.Metadata{
			"provider":       "stripe",
			"session_id":     s.ID,
			"payment_status": string(s.PaymentStatus),
			"status":         string(s.Status),
		},
	}, nil
}

func stripeOutcome(s *stripe.CheckoutSession) Outcome {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return OutcomePaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return OutcomeCancelled
	default:
		return OutcomePending
	}
}
