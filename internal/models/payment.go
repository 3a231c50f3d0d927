package models

import "fmt"

type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethodCode is the persisted form of a PaymentMethod.
type PaymentMethodCode string

const (
	PaymentCashOnDelivery PaymentMethodCode = "cash_on_delivery"
	PaymentBkash          PaymentMethodCode = "bkash"
	PaymentNagad          PaymentMethodCode = "nagad"
	PaymentRocket         PaymentMethodCode = "rocket"
	PaymentGateway        PaymentMethodCode = "gateway"
)

// PaymentMethod is a closed set of variants: ManualPayment, GatewayPayment and
// CashOnDelivery. Consumers switch on the concrete type.
type PaymentMethod interface {
	Code() PaymentMethodCode
	paymentMethod()
}

// ManualPayment is a mobile transfer attested by the customer and verified by an operator.
type ManualPayment struct {
	Provider      PaymentMethodCode
	TransactionID string
	ProofURL      string
}

// GatewayPayment is settled on a hosted payment page.
type GatewayPayment struct{}

type CashOnDelivery struct{}

func (m ManualPayment) Code() PaymentMethodCode { return m.Provider }
func (GatewayPayment) Code() PaymentMethodCode  { return PaymentGateway }
func (CashOnDelivery) Code() PaymentMethodCode  { return PaymentCashOnDelivery }

func (ManualPayment) paymentMethod()  {}
func (GatewayPayment) paymentMethod() {}
func (CashOnDelivery) paymentMethod() {}

// ParsePaymentMethod builds the variant for a persisted or requested method code.
func ParsePaymentMethod(code PaymentMethodCode, transactionID, proofURL string) (PaymentMethod, error) {
	switch code {
	case PaymentCashOnDelivery:
		return CashOnDelivery{}, nil
	case PaymentGateway:
		return GatewayPayment{}, nil
	case PaymentBkash, PaymentNagad, PaymentRocket:
		return ManualPayment{Provider: code, TransactionID: transactionID, ProofURL: proofURL}, nil
	default:
		return nil, fmt.Errorf("unknown payment method %q", code)
	}
}

// Variant returns the variant for the order's stored payment info.
func (p PaymentInfo) Variant() (PaymentMethod, error) {
	return ParsePaymentMethod(p.Method, p.TransactionID, p.ProofURL)
}
