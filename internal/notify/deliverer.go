package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"food-order-service/internal/models"
	"food-order-service/internal/redisclient"
	"food-order-service/internal/util"

	"go.uber.org/zap"
)

// Publisher is the realtime transport. *redisclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Mailer sends one email. *SMTPMailer implements it.
type Mailer interface {
	Send(ctx context.Context, email *models.EmailMessage) error
}

// Deliverer executes queued jobs with bounded timeouts.
type Deliverer struct {
	publisher    Publisher
	mailer       Mailer
	pushTimeout  time.Duration
	emailTimeout time.Duration
	logger       *zap.Logger
}

func NewDeliverer(publisher Publisher, mailer Mailer, pushTimeout, emailTimeout time.Duration) *Deliverer {
	return &Deliverer{
		publisher:    publisher,
		mailer:       mailer,
		pushTimeout:  pushTimeout,
		emailTimeout: emailTimeout,
		logger:       util.GetLogger(),
	}
}

// Push publishes the notification on its recipient's channel. With no
// subscriber the message is dropped; that is not an error.
func (d *Deliverer) Push(ctx context.Context, job *models.NotificationJob) error {
	if job.Notification == nil {
		return errors.New("push job without notification")
	}
	n := job.Notification
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()

	start := time.Now()
	channel := redisclient.NotificationChannel(n.Recipient())
	receivers, err := d.publisher.Publish(ctx, channel, payload)
	util.NotificationDeliveryLatency.WithLabelValues("push").Observe(time.Since(start).Seconds())
	if err != nil {
		util.NotificationsTotal.WithLabelValues("push", "failed").Inc()
		return err
	}
	if receivers == 0 {
		util.NotificationsTotal.WithLabelValues("push", "dropped").Inc()
		d.logger.Debug("No subscriber for push", zap.String("channel", channel))
		return nil
	}
	util.NotificationsTotal.WithLabelValues("push", "sent").Inc()
	return nil
}

func (d *Deliverer) Email(ctx context.Context, job *models.NotificationJob) error {
	if job.Email == nil {
		return errors.New("email job without message")
	}
	ctx, cancel := context.WithTimeout(ctx, d.emailTimeout)
	defer cancel()

	start := time.Now()
	err := d.mailer.Send(ctx, job.Email)
	util.NotificationDeliveryLatency.WithLabelValues("email").Observe(time.Since(start).Seconds())
	if err != nil {
		util.NotificationsTotal.WithLabelValues("email", "failed").Inc()
		return err
	}
	util.NotificationsTotal.WithLabelValues("email", "sent").Inc()
	return nil
}

// Handle runs a job of either kind.
func (d *Deliverer) Handle(ctx context.Context, job *models.NotificationJob) error {
	switch job.EventType {
	case models.EventTypeNotificationPush:
		return d.Push(ctx, job)
	case models.EventTypeNotificationEmail:
		return d.Email(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q", job.EventType)
	}
}
