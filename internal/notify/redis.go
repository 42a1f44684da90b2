package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client used by RedisPublisher.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes events on a Redis channel and keeps the latest one
// under "<channel>:latest" for consumers that connect between cycles.
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher connects to Redis at addr.
func NewRedisPublisher(addr, password string, db int, channel string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: client, channel: channel}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string { return "redis" }

// LatestKey is the key holding the most recent event.
func (p *RedisPublisher) LatestKey() string { return p.channel + ":latest" }

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Set(ctx, p.LatestKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.LatestKey(), err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
