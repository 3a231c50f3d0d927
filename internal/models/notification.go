package models

import "time"

type NotificationType string

const (
	NotificationOrderPlaced     NotificationType = "order_placed"
	NotificationNewOrder        NotificationType = "new_order"
	NotificationOrderStatus     NotificationType = "order_status"
	NotificationPaymentVerified NotificationType = "payment_verified"
	NotificationPaymentFailed   NotificationType = "payment_failed"
	NotificationReturnRequested NotificationType = "return_requested"
	NotificationReturnReviewed  NotificationType = "return_reviewed"
	NotificationRefundStatus    NotificationType = "refund_status"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Audience selects whose channel a notification belongs to.
type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
)

// Notification is the durable record of a dispatched event. Only IsRead changes after insert.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	Type      NotificationType `db:"type" json:"type"`
	Priority  Priority         `db:"priority" json:"priority"`
	Audience  Audience         `db:"audience" json:"audience"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	IsRead    bool             `db:"is_read" json:"read"`
	UserID    *int64           `db:"user_id" json:"user_id,omitempty"`
	OrderID   *int64           `db:"order_id" json:"order_id,omitempty"`
	ChatID    *string          `db:"chat_id" json:"chat_id,omitempty"`
	ReviewID  *string          `db:"review_id" json:"review_id,omitempty"`
	Metadata  Metadata         `db:"metadata" json:"metadata,omitempty"`
	ExpiresAt time.Time        `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// Recipient scopes notification reads and pushes to one user or to the operators.
type Recipient struct {
	Audience Audience
	UserID   int64
}

func UserRecipient(userID int64) Recipient {
	return Recipient{Audience: AudienceUser, UserID: userID}
}

func AdminRecipient() Recipient {
	return Recipient{Audience: AudienceAdmin}
}

// Recipient derives the channel the notification is addressed to.
func (n *Notification) Recipient() Recipient {
	if n.Audience == AudienceAdmin || n.UserID == nil {
		return AdminRecipient()
	}
	return UserRecipient(*n.UserID)
}
