package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"food-order-service/config"
	"food-order-service/internal/models"

	"github.com/shopspring/decimal"
)

// Outcome is the authoritative state of a gateway transaction.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePending   Outcome = "pending"
)

// ErrUnknownTransaction means the gateway does not recognise the reference a
// callback carried, or the callback carried none it could be asked about.
var ErrUnknownTransaction = errors.New("gateway does not recognise the transaction")

// InitRequest starts a hosted payment for one order.
type InitRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Customer    models.Customer
	ItemCount   int
	SuccessURL  string
	FailURL     string
	CancelURL   string
	IPNURL      string
}

// Session is where the customer is redirected to pay.
type Session struct {
	URL       string
	SessionID string
}

// Callback carries the references found on a redirect or a server
// notification. Nothing in it is trusted until Validate confirms it.
type Callback struct {
	OrderNumber string
	Ref         string
	Status      string
}

// Validation is the provider's own answer about a transaction.
type Validation struct {
	OrderNumber   string
	TransactionID string
	Outcome       Outcome
	Amount        decimal.Decimal
	Currency      string
	Metadata      models.Metadata
}

// Provider is one hosted payment gateway.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, req *InitRequest) (*Session, error)
	// ParseCallback reads a redirect or server notification. It may consume r.Body.
	ParseCallback(r *http.Request) (*Callback, error)
	// Validate asks the gateway, server to server, for the transaction's real state.
	Validate(ctx context.Context, cb *Callback) (*Validation, error)
}

// NewProvider selects the configured gateway.
func NewProvider(cfg config.GatewayConfig) (Provider, error) {
	switch cfg.Provider {
	case "sslcommerz":
		return NewSSLCommerzProvider(cfg), nil
	case "stripe":
		return NewStripeProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Provider)
	}
}
