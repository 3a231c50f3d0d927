package models

import "time"

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypePaymentVerified     = "PAYMENT_VERIFIED"
	EventTypePaymentFailed       = "PAYMENT_FAILED"
	EventTypeRefundStatusChanged = "REFUND_STATUS_CHANGED"

	EventTypeNotificationPush  = "NOTIFICATION_PUSH"
	EventTypeNotificationEmail = "NOTIFICATION_EMAIL"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) Kind() string { return e.EventType }

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderNumber   string          `json:"order_number"`
	UserID        *int64          `json:"user_id,omitempty"`
	FinalAmount   string          `json:"final_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every state machine transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Actor       string      `json:"actor"`
}

// PaymentEvent published when a payment is verified or fails
type PaymentEvent struct {
	BaseEvent
	OrderNumber   string        `json:"order_number"`
	Path          string        `json:"path"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// RefundEvent published on refund transitions
type RefundEvent struct {
	BaseEvent
	RefundID    string       `json:"refund_id"`
	OrderNumber string       `json:"order_number"`
	Status      RefundStatus `json:"status"`
	Amount      string       `json:"amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// EmailMessage is a rendered email waiting for delivery.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationJob is one background delivery: a realtime push of a persisted
// notification, or an email.
type NotificationJob struct {
	BaseEvent
	Notification *Notification `json:"notification,omitempty"`
	Email        *EmailMessage `json:"email,omitempty"`
}
