package redisclient

import (
	"context"
	"testing"
	"time"

	"food-order-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func TestClaimTransactionOnlyOnce(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.ClaimTransaction(ctx, "VAL-1", "req-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ClaimTransaction(ctx, "VAL-1", "req-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same transaction must lose")

	mr.FastForward(2 * time.Hour)
	ok, err = c.ClaimTransaction(ctx, "VAL-1", "req-c", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claim expires with its ttl")
}

func TestReleaseTransactionOnlyByOwner(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.ClaimTransaction(ctx, "VAL-2", "req-a", time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.ReleaseTransaction(ctx, "VAL-2", "req-b"))
	assert.True(t, mr.Exists("gateway:tx:VAL-2"))

	require.NoError(t, c.ReleaseTransaction(ctx, "VAL-2", "req-a"))
	assert.False(t, mr.Exists("gateway:tx:VAL-2"))
}

func TestPublishReachesSubscriber(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	channel := NotificationChannel(models.UserRecipient(9))
	assert.Equal(t, "notifications:user:9", channel)

	n, err := c.Publish(ctx, channel, []byte(`{"title":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "no subscriber, message dropped")

	sub, err := c.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	n, err = c.Publish(ctx, channel, []byte(`{"title":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, `{"title":"hi"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestAdminChannel(t *testing.T) {
	assert.Equal(t, "notifications:admin", NotificationChannel(models.AdminRecipient()))
}
