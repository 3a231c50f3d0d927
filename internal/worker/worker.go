package worker

import (
	"context"
	"time"

	"food-order-service/internal/broker"
	"food-order-service/internal/notify"
	"food-order-service/internal/util"

	"go.uber.org/zap"
)

// MessageConsumer is a Kafka subscription. *broker.Consumer implements it.
type MessageConsumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker delivers push and email jobs from the notification topic.
type NotificationWorker struct {
	consumer     MessageConsumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer MessageConsumer, deliverer *notify.Deliverer) *NotificationWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPush(deliverer.Push)
	eventHandler.OnEmail(deliverer.Email)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// ExpiredNotificationPurger is the store call the expiry worker makes.
type ExpiredNotificationPurger interface {
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

// ExpiryWorker deletes notifications past their expiresAt on a fixed interval.
type ExpiryWorker struct {
	store    ExpiredNotificationPurger
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewExpiryWorker(store ExpiredNotificationPurger, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start purges once immediately, then on every tick until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification expiry worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping notification expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *ExpiryWorker) purge(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "ExpiryWorker.Purge")
	defer span.End()

	n, err := w.store.DeleteExpiredNotifications(ctx, w.now())
	if err != nil {
		w.logger.Error("Failed to purge expired notifications", zap.Error(err))
		return
	}
	util.NotificationsPurgedTotal.Add(float64(n))
	if n > 0 {
		w.logger.Info("Purged expired notifications", zap.Int64("count", n))
	}
}
