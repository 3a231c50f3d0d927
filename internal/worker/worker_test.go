package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"food-order-service/internal/broker"
	"food-order-service/internal/models"
	"food-order-service/internal/notify"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayConsumer hands a fixed set of messages to the handler, then returns.
type replayConsumer struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (c *replayConsumer) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range c.messages {
		c.errs = append(c.errs, handler(ctx, msg))
	}
	return nil
}

func (c *replayConsumer) Close() error {
	c.closed = true
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []models.EmailMessage
}

func (m *recordingMailer) Send(_ context.Context, email *models.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *email)
	return nil
}

type recordingPublisher struct {
	channels []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) (int64, error) {
	p.channels = append(p.channels, channel)
	return 1, nil
}

func message(t *testing.T, job *models.NotificationJob) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(job.EventID), Value: raw}
}

func TestNotificationWorkerRoutesJobs(t *testing.T) {
	userID := int64(12)
	consumer := &replayConsumer{messages: []kafka.Message{
		message(t, &models.NotificationJob{
			BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeNotificationEmail},
			Email:     &models.EmailMessage{To: "a@example.com", Subject: "Order placed", Body: "Thanks"},
		}),
		message(t, &models.NotificationJob{
			BaseEvent:    models.BaseEvent{EventID: "e2", EventType: models.EventTypeNotificationPush},
			Notification: &models.Notification{ID: "n1", Audience: models.AudienceUser, UserID: &userID},
		}),
		message(t, &models.NotificationJob{
			BaseEvent:    models.BaseEvent{EventID: "e3", EventType: models.EventTypeNotificationPush},
			Notification: &models.Notification{ID: "n2", Audience: models.AudienceAdmin},
		}),
	}}
	mailer := &recordingMailer{}
	publisher := &recordingPublisher{}

	w := NewNotificationWorker(consumer, notify.NewDeliverer(publisher, mailer, time.Second, time.Second))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	assert.Equal(t, []error{nil, nil, nil}, consumer.errs)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "a@example.com", mailer.sent[0].To)
	assert.Equal(t, []string{"notifications:user:12", "notifications:admin"}, publisher.channels)
	assert.True(t, consumer.closed)
}

type fakePurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePurger) DeleteExpiredNotifications(_ context.Context, _ time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 2, p.err
}

func (p *fakePurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestExpiryWorkerPurgesUntilCancelled(t *testing.T) {
	purger := &fakePurger{}
	w := NewExpiryWorker(purger, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return purger.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("expiry worker did not stop")
	}
}

func TestExpiryWorkerSurvivesStoreErrors(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	w := NewExpiryWorker(purger, time.Hour)

	w.purge(context.Background())
	w.purge(context.Background())

	assert.Equal(t, 2, purger.count())
}
