package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client defines the interface for the optional Redis-backed debug-log sink.
// It is a peripheral, out-of-core concern: the broker runs with it disabled
// (a no-op or nil Client) unless a Redis URL is configured.
type Client interface {
	// Push appends a log record to a list (LPUSH).
	Push(ctx context.Context, list string, rec LogRecord) error

	// Pop removes and returns the oldest log record from a list (BRPOP).
	// Blocks until a record is available or context is cancelled.
	Pop(ctx context.Context, list string) (*LogRecord, error)

	// Publish announces a stray-reply event on a pub/sub channel.
	Publish(ctx context.Context, channel string, event StrayReplyEvent) error

	// Subscribe returns a channel of stray-reply events until closed.
	Subscribe(ctx context.Context, channel string) (<-chan StrayReplyEvent, error)

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection used by the debug-log sink.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisClient implements Client using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis-backed queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFromExisting wraps an already-connected go-redis client.
// Used by tests to point the sink at a miniredis instance.
func NewRedisClientFromExisting(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Push appends a log record to a list.
func (c *RedisClient) Push(ctx context.Context, list string, rec LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}
	if err := c.client.LPush(ctx, list, data).Err(); err != nil {
		return fmt.Errorf("failed to push to list %s: %w", list, err)
	}
	return nil
}

// Pop removes and returns the oldest log record from a list.
func (c *RedisClient) Pop(ctx context.Context, list string) (*LogRecord, error) {
	result, err := c.client.BRPop(ctx, 0, list).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from list %s: %w", list, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var rec LogRecord
	if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log record: %w", err)
	}
	return &rec, nil
}

// Publish announces a stray-reply event on a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, event StrayReplyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stray-reply event: %w", err)
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of stray-reply events until closed.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan StrayReplyEvent, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	events := make(chan StrayReplyEvent)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event StrayReplyEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
