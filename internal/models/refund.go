package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ReturnReason string

const (
	ReturnReasonOrderCancelled   ReturnReason = "order_cancelled"
	ReturnReasonProductDefective ReturnReason = "product_defective"
	ReturnReasonWrongItem        ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed   ReturnReason = "not_as_described"
	ReturnReasonLateDelivery     ReturnReason = "late_delivery"
	ReturnReasonCustomerRequest  ReturnReason = "customer_request"
	ReturnReasonOther            ReturnReason = "other"
)

func (r ReturnReason) Valid() bool {
	switch r {
	case ReturnReasonOrderCancelled, ReturnReasonProductDefective, ReturnReasonWrongItem,
		ReturnReasonNotAsDescribed, ReturnReasonLateDelivery, ReturnReasonCustomerRequest,
		ReturnReasonOther:
		return true
	}
	return false
}

type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusCompleted ReturnStatus = "completed"
)

// ReturnRequest lives on the order; at most one per order.
type ReturnRequest struct {
	Reason      ReturnReason `json:"reason"`
	Description string       `json:"description,omitempty"`
	Status      ReturnStatus `json:"status"`
	RequestedBy string       `json:"requested_by"`
	RequestedAt time.Time    `json:"requested_at"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
	AdminNote   string       `json:"admin_note,omitempty"`
}

func (r ReturnRequest) Value() (driver.Value, error) { return json.Marshal(r) }
func (r *ReturnRequest) Scan(src any) error          { return scanJSON(src, r) }

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusRejected  RefundStatus = "rejected"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusCompleted RefundStatus = "completed"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusPending:   {RefundStatusApproved, RefundStatusRejected},
	RefundStatusApproved:  {RefundStatusProcessed},
	RefundStatusProcessed: {RefundStatusCompleted},
}

// CanTransition reports whether the refund state machine allows from -> to.
func (from RefundStatus) CanTransition(to RefundStatus) bool {
	for _, next := range refundTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Refund is an independent financial reversal tied to exactly one order.
type Refund struct {
	ID              string          `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	UserID          *int64          `db:"user_id" json:"user_id,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Reason          string          `db:"reason" json:"reason"`
	Status          RefundStatus    `db:"status" json:"status"`
	RequestedBy     string          `db:"requested_by" json:"requested_by"`
	ProcessedBy     string          `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	RejectionReason string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
