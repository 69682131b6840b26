package redis

import (
	"context"
	"fmt"
	"time"

	"depositgateway/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// ReplayCache implements ports.WebhookReplayCache using Redis. It is a
// fast path only: a cache miss (or a cache read error) always falls
// through to the database, which remains the sole source of correctness.
type ReplayCache struct {
	client *goredis.Client
	prefix string
}

// NewReplayCache creates a new Redis-backed webhook replay cache.
func NewReplayCache(client *goredis.Client) ports.WebhookReplayCache {
	return &ReplayCache{client: client, prefix: "webhook_replay:"}
}

// Get retrieves a cached marker by key. Returns nil, nil on a miss.
func (c *ReplayCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis replay cache get: %w", err)
	}
	return val, nil
}

// Set stores a marker with TTL.
func (c *ReplayCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis replay cache set: %w", err)
	}
	return nil
}
