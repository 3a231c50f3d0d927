package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"food-order-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_claim.lua
var releaseClaimScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing go-redis client.
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseClaimScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func transactionKey(txID string) string {
	return "gateway:tx:" + txID
}

// ClaimTransaction takes the processing claim for a gateway transaction id.
// It returns false when another request already holds or completed it.
func (c *Client) ClaimTransaction(ctx context.Context, txID, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, transactionKey(txID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim transaction %s: %w", txID, err)
	}
	return ok, nil
}

// ReleaseTransaction drops a claim held by owner so a gateway retry can apply it.
func (c *Client) ReleaseTransaction(ctx context.Context, txID, owner string) error {
	if err := c.releaseScript.Run(ctx, c.rdb, []string{transactionKey(txID)}, owner).Err(); err != nil {
		return fmt.Errorf("release transaction %s: %w", txID, err)
	}
	return nil
}

// NotificationChannel is the pub/sub channel a recipient's realtime stream listens on.
func NotificationChannel(r models.Recipient) string {
	if r.Audience == models.AudienceAdmin {
		return "notifications:admin"
	}
	return fmt.Sprintf("notifications:user:%d", r.UserID)
}

// Publish sends payload on channel and returns the number of subscribers that
// received it. Zero means nobody was listening; the message is gone.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := c.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", channel, err)
	}
	return n, nil
}

// Subscribe opens a subscription on channel. Callers must close it.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return sub, nil
}
