package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"food-order-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) PublishEvent(ctx context.Context, key string, event interface{}) error {
	return m.Called(ctx, key, event).Error(0)
}

func TestPublishKeysByOrderNumber(t *testing.T) {
	w := new(mockWriter)
	ep := NewEventPublisher(w)
	ctx := context.Background()

	event := &models.OrderStatusChangedEvent{OrderNumber: "ORD-01HV", From: models.OrderStatusPending, To: models.OrderStatusConfirmed}
	w.On("PublishEvent", ctx, "order-ORD-01HV", event).Return(nil).Once()
	require.NoError(t, ep.PublishOrderStatusChanged(ctx, event))

	refund := &models.RefundEvent{OrderNumber: "ORD-01HV", RefundID: "r1"}
	w.On("PublishEvent", ctx, "order-ORD-01HV", refund).Return(errors.New("broker down")).Once()
	assert.Error(t, ep.PublishRefundStatusChanged(ctx, refund))

	w.AssertExpectations(t)
}

func TestHandleMessageRoutesByJobType(t *testing.T) {
	eh := NewEventHandler()
	var pushed, emailed []*models.NotificationJob
	eh.OnPush(func(_ context.Context, job *models.NotificationJob) error {
		pushed = append(pushed, job)
		return nil
	})
	eh.OnEmail(func(_ context.Context, job *models.NotificationJob) error {
		emailed = append(emailed, job)
		return nil
	})

	push := models.NotificationJob{
		BaseEvent:    models.BaseEvent{EventID: "e1", EventType: models.EventTypeNotificationPush},
		Notification: &models.Notification{ID: "n1", Title: "Order ready"},
	}
	email := models.NotificationJob{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypeNotificationEmail},
		Email:     &models.EmailMessage{To: "a@example.com", Subject: "Order placed"},
	}

	for _, job := range []models.NotificationJob{push, email, {BaseEvent: models.BaseEvent{EventType: "OTHER"}}} {
		raw, err := json.Marshal(job)
		require.NoError(t, err)
		require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	}

	require.Len(t, pushed, 1)
	assert.Equal(t, "n1", pushed[0].Notification.ID)
	require.Len(t, emailed, 1)
	assert.Equal(t, "a@example.com", emailed[0].Email.To)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestEventsCarryTheirType(t *testing.T) {
	var event interface{} = &models.PaymentEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypePaymentVerified}}
	typed, ok := event.(Typed)
	require.True(t, ok)
	assert.Equal(t, models.EventTypePaymentVerified, typed.Kind())

	msg := kafka.Message{Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(typed.Kind())}}}
	assert.Equal(t, models.EventTypePaymentVerified, headerValue(msg, HeaderEventType))
	assert.Empty(t, headerValue(msg, "missing"))
}

func TestProducersDoNotHoldCallersOnBatching(t *testing.T) {
	direct := NewProducer([]string{"localhost:9092"}, "order-events")
	defer direct.Close()
	assert.False(t, direct.writer.Async)
	assert.LessOrEqual(t, direct.writer.BatchTimeout, 10*time.Millisecond)
	assert.IsType(t, &kafka.Hash{}, direct.writer.Balancer)

	async := NewAsyncProducer([]string{"localhost:9092"}, "notification-jobs")
	defer async.Close()
	assert.True(t, async.writer.Async)
	assert.NotNil(t, async.writer.Completion)
	assert.LessOrEqual(t, async.writer.BatchTimeout, 10*time.Millisecond)
}
