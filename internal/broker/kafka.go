package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"food-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HeaderEventType carries the event type so consumers can route without decoding.
const HeaderEventType = "event-type"

const (
	fetchBackoffMin = 200 * time.Millisecond
	fetchBackoffMax = 10 * time.Second

	// batchTimeout caps how long a write waits for more messages. kafka-go
	// defaults to one second, which a synchronous single-message write pays in full.
	batchTimeout = 10 * time.Millisecond
)

// Typed is implemented by every event that embeds models.BaseEvent.
type Typed interface {
	Kind() string
}

// Producer writes JSON events to one topic. Messages are hashed by key, so all
// events of one order land on the same partition in publish order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: newWriter(brokers, topic)}
}

// NewAsyncProducer returns a producer whose PublishEvent only enqueues the
// message; delivery failures are logged from the writer's completion callback.
// Used where the caller must not wait on the broker.
func NewAsyncProducer(brokers []string, topic string) *Producer {
	writer := newWriter(brokers, topic)
	writer.Async = true
	writer.Completion = func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		logger := util.GetLogger()
		for _, msg := range messages {
			logger.Error("Async publish failed",
				zap.String("topic", topic),
				zap.String("key", string(msg.Key)),
				zap.String("type", headerValue(msg, HeaderEventType)),
				zap.Error(err))
		}
	}
	return &Producer{writer: writer}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// PublishEvent marshals event and writes it under key.
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	ctx, span := util.StartSpan(ctx, "Producer.PublishEvent")
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", p.writer.Topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	eventType := fmt.Sprintf("%T", event)
	if t, ok := event.(Typed); ok {
		eventType = t.Kind()
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		util.FailSpan(ctx, err)
		return fmt.Errorf("write %s to %s: %w", eventType, p.writer.Topic, err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("type", eventType))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{reader: reader}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler processes one fetched message.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches until ctx is cancelled. A handler error is logged and
// the message is still committed: notification delivery is best-effort and a
// poisoned job must not stall the partition. Fetch errors back off exponentially.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	logger := util.GetLogger().With(zap.String("topic", c.reader.Config().Topic))
	logger.Info("Starting Kafka consumer")

	backoff := fetchBackoffMin
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Consumer stopped")
				return ctx.Err()
			}
			logger.Error("Fetch failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffMin

		if err := handler(ctx, msg); err != nil {
			logger.Warn("Message handling failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("type", headerValue(msg, HeaderEventType)),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error("Commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
