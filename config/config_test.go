package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "60", cfg.Pricing.BaseDeliveryCharge)
	assert.Equal(t, "500", cfg.Pricing.FreeDeliveryThreshold)
	assert.Equal(t, 24, cfg.Business.ReturnWindowHours)
	assert.Equal(t, 30*24*time.Hour, cfg.Notification.TTL)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BASE_DELIVERY_CHARGE", "80")
	t.Setenv("RETURN_WINDOW_HOURS", "48")
	t.Setenv("NOTIFY_QUEUE", "local")
	t.Setenv("PUSH_TIMEOUT", "500ms")
	t.Setenv("GATEWAY_PROVIDER", "stripe")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "80", cfg.Pricing.BaseDeliveryCharge)
	assert.Equal(t, 48, cfg.Business.ReturnWindowHours)
	assert.Equal(t, "local", cfg.Notification.Queue)
	assert.Equal(t, 500*time.Millisecond, cfg.Notification.PushTimeout)
	assert.Equal(t, "stripe", cfg.Gateway.Provider)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("EMAIL_TIMEOUT", "soon")
	t.Setenv("TRACE_SAMPLE_RATIO", "2")

	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.Email.Timeout)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
}
