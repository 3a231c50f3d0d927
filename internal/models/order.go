package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type OrderStatus string

// Order statuses
const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// Customer is copied onto the order at creation and never re-synced with the profile.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
}

func (c Customer) Value() (driver.Value, error) { return json.Marshal(c) }
func (c *Customer) Scan(src any) error          { return scanJSON(src, c) }

// OrderItem snapshots name and price at order time.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderItems []OrderItem

func (it OrderItems) Value() (driver.Value, error) {
	if it == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(it)
}

func (it *OrderItems) Scan(src any) error { return scanJSON(src, it) }

// StatusEntry is one immutable audit record of a transition.
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     string      `json:"actor"`
	Note      string      `json:"note,omitempty"`
}

type StatusHistory []StatusEntry

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *StatusHistory) Scan(src any) error { return scanJSON(src, h) }

type PaymentInfo struct {
	Method        PaymentMethodCode `db:"payment_method" json:"method"`
	Status        PaymentStatus     `db:"payment_status" json:"status"`
	TransactionID string            `db:"payment_transaction_id" json:"transaction_id,omitempty"`
	ProofURL      string            `db:"payment_proof_url" json:"proof_url,omitempty"`
	VerifiedBy    string            `db:"payment_verified_by" json:"verified_by,omitempty"`
	VerifiedAt    *time.Time        `db:"payment_verified_at" json:"verified_at,omitempty"`
	Metadata      Metadata          `db:"payment_metadata" json:"metadata,omitempty"`
}

type DeliveryInfo struct {
	Method      DeliveryMethod `db:"delivery_method" json:"method"`
	Address     string         `db:"delivery_address" json:"address,omitempty"`
	DeliveredAt *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
}

// Order is the root entity of the fulfillment core.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	UserID         *int64          `db:"user_id" json:"user_id,omitempty"`
	Customer       Customer        `db:"customer" json:"customer"`
	Items          OrderItems      `db:"items" json:"items"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	DeliveryCharge decimal.Decimal `db:"delivery_charge" json:"delivery_charge"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	FinalAmount    decimal.Decimal `db:"final_amount" json:"final_amount"`
	PaymentInfo    `json:"payment_info"`
	OrderStatus    OrderStatus    `db:"order_status" json:"order_status"`
	StatusHistory  StatusHistory  `db:"status_history" json:"status_history"`
	DeliveryInfo   `json:"delivery_info"`
	ReturnRequest  *ReturnRequest `db:"return_request" json:"return_request,omitempty"`
	RefundIDs      pq.StringArray `db:"refund_ids" json:"refunds"`
	Version        int64          `db:"version" json:"version"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// RecomputeFinal restores finalAmount = totalAmount + deliveryCharge - discount.
// Repositories call it on every persist.
func (o *Order) RecomputeFinal() {
	o.FinalAmount = o.TotalAmount.Add(o.DeliveryCharge).Sub(o.Discount)
}

// AppendStatus moves the order to status and records the audit entry.
func (o *Order) AppendStatus(status OrderStatus, actor, note string, at time.Time) {
	o.OrderStatus = status
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: at,
		Actor:     actor,
		Note:      note,
	})
}

// OwnedBy reports whether userID placed the order. Guest orders have no owner.
func (o *Order) OwnedBy(userID int64) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderSummary is the public view returned from order creation.
type OrderSummary struct {
	OrderNumber    string          `json:"order_number"`
	OrderStatus    OrderStatus     `json:"order_status"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	ItemCount      int             `json:"item_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Discount       decimal.Decimal `json:"discount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (o *Order) Summary() *OrderSummary {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	return &OrderSummary{
		OrderNumber:    o.OrderNumber,
		OrderStatus:    o.OrderStatus,
		PaymentMethod:  string(o.PaymentInfo.Method),
		PaymentStatus:  o.PaymentInfo.Status,
		ItemCount:      count,
		TotalAmount:    o.TotalAmount,
		DeliveryCharge: o.DeliveryCharge,
		Discount:       o.Discount,
		FinalAmount:    o.FinalAmount,
		CreatedAt:      o.CreatedAt,
	}
}
