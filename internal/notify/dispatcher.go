package notify

import (
	"context"
	"time"

	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists notification records.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Queue hands a delivery job to the background workers.
type Queue interface {
	Enqueue(ctx context.Context, job *models.NotificationJob) error
}

// Dispatcher fans an event out to the persisted record, a realtime push and
// email. Only the persisted record is written inline; push and email go
// through the queue. No method returns an error: every failure is logged.
type Dispatcher struct {
	store         Store
	queue         Queue
	ttl           time.Duration
	operatorEmail string
	now           func() time.Time
	logger        *zap.Logger
}

func NewDispatcher(store Store, queue Queue, ttl time.Duration, operatorEmail string) *Dispatcher {
	return &Dispatcher{
		store:         store,
		queue:         queue,
		ttl:           ttl,
		operatorEmail: operatorEmail,
		now:           time.Now,
		logger:        util.GetLogger(),
	}
}

// Send persists n and enqueues its realtime push.
func (d *Dispatcher) Send(ctx context.Context, n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := d.now()
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = now.Add(d.ttl)
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		util.NotificationsTotal.WithLabelValues("record", "failed").Inc()
		d.logger.Error("Failed to persist notification",
			zap.String("type", string(n.Type)),
			zap.Error(err))
	} else {
		util.NotificationsTotal.WithLabelValues("record", "sent").Inc()
	}

	d.enqueue(ctx, &models.NotificationJob{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationPush,
			Timestamp: now,
		},
		Notification: n,
	})
}

// SendEmail enqueues an email. Empty recipients are skipped.
func (d *Dispatcher) SendEmail(ctx context.Context, email *models.EmailMessage) {
	if email.To == "" {
		return
	}
	d.enqueue(ctx, &models.NotificationJob{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationEmail,
			Timestamp: d.now(),
		},
		Email: email,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, job *models.NotificationJob) {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		util.NotificationsTotal.WithLabelValues(jobChannel(job), "enqueue_failed").Inc()
		d.logger.Warn("Failed to enqueue notification job",
			zap.String("event_type", job.EventType),
			zap.Error(err))
	}
}

func jobChannel(job *models.NotificationJob) string {
	if job.EventType == models.EventTypeNotificationEmail {
		return "email"
	}
	return "push"
}

func orderRef(o *models.Order) *int64 {
	id := o.ID
	return &id
}

func orderMetadata(o *models.Order) models.Metadata {
	return models.Metadata{
		"order_number": o.OrderNumber,
		"order_status": string(o.OrderStatus),
	}
}

func (d *Dispatcher) toUser(ctx context.Context, o *models.Order, typ models.NotificationType, p models.Priority, title, message string) {
	if o.UserID == nil {
		return
	}
	d.Send(ctx, &models.Notification{
		Type:     typ,
		Priority: p,
		Audience: models.AudienceUser,
		Title:    title,
		Message:  message,
		UserID:   o.UserID,
		OrderID:  orderRef(o),
		Metadata: orderMetadata(o),
	})
}

func (d *Dispatcher) toAdmin(ctx context.Context, o *models.Order, typ models.NotificationType, p models.Priority, title, message string) {
	d.Send(ctx, &models.Notification{
		Type:     typ,
		Priority: p,
		Audience: models.AudienceAdmin,
		Title:    title,
		Message:  message,
		OrderID:  orderRef(o),
		Metadata: orderMetadata(o),
	})
}

// OrderPlaced confirms a new order to the customer and alerts operators.
func (d *Dispatcher) OrderPlaced(ctx context.Context, o *models.Order) {
	d.toUser(ctx, o, models.NotificationOrderPlaced, models.PriorityMedium,
		"Order Placed", "Your order "+o.OrderNumber+" has been placed successfully.")
	d.toAdmin(ctx, o, models.NotificationNewOrder, models.PriorityHigh,
		"New Order", "New order "+o.OrderNumber+" from "+o.Customer.Name+" ("+o.FinalAmount.StringFixed(2)+").")

	if body, err := render(orderPlacedEmail, o); err != nil {
		d.logger.Error("Failed to render order email", zap.Error(err))
	} else {
		d.SendEmail(ctx, &models.EmailMessage{
			To:      o.Customer.Email,
			Subject: "Order confirmation " + o.OrderNumber,
			Body:    body,
		})
	}

	if body, err := render(operatorOrderEmail, o); err != nil {
		d.logger.Error("Failed to render operator email", zap.Error(err))
	} else {
		d.SendEmail(ctx, &models.EmailMessage{
			To:      d.operatorEmail,
			Subject: "New order " + o.OrderNumber,
			Body:    body,
		})
	}
}

// OrderStatusChanged notifies the customer when the order enters a status
// that has a message. Other statuses are ignored.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o *models.Order) {
	m, ok := statusText(o)
	if !ok {
		return
	}
	d.toUser(ctx, o, models.NotificationOrderStatus, m.priority, m.title, m.message)

	body, err := render(statusEmail, map[string]any{
		"Name":        o.Customer.Name,
		"Message":     m.message,
		"OrderNumber": o.OrderNumber,
		"Status":      o.OrderStatus,
	})
	if err != nil {
		d.logger.Error("Failed to render status email", zap.Error(err))
		return
	}
	d.SendEmail(ctx, &models.EmailMessage{
		To:      o.Customer.Email,
		Subject: m.title + " - " + o.OrderNumber,
		Body:    body,
	})
}

func (d *Dispatcher) PaymentVerified(ctx context.Context, o *models.Order) {
	d.toUser(ctx, o, models.NotificationPaymentVerified, models.PriorityHigh,
		"Payment Verified", "Payment for order "+o.OrderNumber+" has been verified.")
}

func (d *Dispatcher) PaymentFailed(ctx context.Context, o *models.Order) {
	msg := "Payment for order " + o.OrderNumber + " failed."
	if o.PaymentInfo.Status == models.PaymentStatusCancelled {
		msg = "Payment for order " + o.OrderNumber + " was cancelled."
	}
	d.toUser(ctx, o, models.NotificationPaymentFailed, models.PriorityHigh, "Payment Failed", msg)
}

func (d *Dispatcher) ReturnRequested(ctx context.Context, o *models.Order) {
	d.toAdmin(ctx, o, models.NotificationReturnRequested, models.PriorityHigh,
		"Return Requested", "A return was requested for order "+o.OrderNumber+".")
}

func (d *Dispatcher) ReturnReviewed(ctx context.Context, o *models.Order) {
	if o.ReturnRequest == nil {
		return
	}
	d.toUser(ctx, o, models.NotificationReturnReviewed, models.PriorityMedium,
		"Return Request Update",
		"Your return request for order "+o.OrderNumber+" is "+string(o.ReturnRequest.Status)+".")
}

// RefundStatusChanged pushes the transition to the refund's customer.
func (d *Dispatcher) RefundStatusChanged(ctx context.Context, r *models.Refund) {
	if r.UserID == nil {
		return
	}
	orderID := r.OrderID
	d.Send(ctx, &models.Notification{
		Type:     models.NotificationRefundStatus,
		Priority: models.PriorityHigh,
		Audience: models.AudienceUser,
		Title:    "Refund Update",
		Message:  refundText(r),
		UserID:   r.UserID,
		OrderID:  &orderID,
		Metadata: models.Metadata{
			"order_number":  r.OrderNumber,
			"refund_id":     r.ID,
			"refund_status": string(r.Status),
		},
	})
}
