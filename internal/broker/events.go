package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the write side of a topic. *Producer implements it.
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderNumber string) string {
	return "order-" + orderNumber
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNumber), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNumber), event)
}

// PublishPayment publishes PaymentVerified or PaymentFailed events
func (ep *EventPublisher) PublishPayment(ctx context.Context, event *models.PaymentEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNumber), event)
}

// PublishRefundStatusChanged publishes RefundStatusChanged event
func (ep *EventPublisher) PublishRefundStatusChanged(ctx context.Context, event *models.RefundEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNumber), event)
}

// EventHandler routes notification jobs read from the queue topic
type EventHandler struct {
	onPush  func(context.Context, *models.NotificationJob) error
	onEmail func(context.Context, *models.NotificationJob) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPush registers a handler for realtime push jobs
func (eh *EventHandler) OnPush(handler func(context.Context, *models.NotificationJob) error) {
	eh.onPush = handler
}

// OnEmail registers a handler for email jobs
func (eh *EventHandler) OnEmail(handler func(context.Context, *models.NotificationJob) error) {
	eh.onEmail = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var job models.NotificationJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("failed to unmarshal notification job: %w", err)
	}

	util.GetLogger().Debug("Handling job",
		zap.String("event_type", job.EventType),
		zap.String("event_id", job.EventID))

	switch job.EventType {
	case models.EventTypeNotificationPush:
		if eh.onPush != nil {
			return eh.onPush(ctx, &job)
		}

	case models.EventTypeNotificationEmail:
		if eh.onEmail != nil {
			return eh.onEmail(ctx, &job)
		}

	default:
		util.GetLogger().Warn("Unhandled job type", zap.String("event_type", job.EventType))
	}

	return nil
}
