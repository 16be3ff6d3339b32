package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops producer event payloads from a Redis list.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	return NewConsumerWithClient(redis.NewClient(&redis.Options{
		Addr:     defaultAddr(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.Key, cfg.BlockTimeout), nil
}

// NewConsumerWithClient wraps an existing client.
func NewConsumerWithClient(client *redis.Client, key string, blockTimeout time.Duration) *Consumer {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &Consumer{client: client, key: key, blockTimeout: blockTimeout}
}

func defaultAddr(addr string) string {
	if addr == "" {
		return "127.0.0.1:6379"
	}
	return addr
}

// Pop pops one payload from the list. It returns nil, nil when the block
// timeout elapses with nothing queued.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Push appends payloads to the tail of the list, the producer side of Pop.
func (c *Consumer) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	vals := make([]interface{}, len(payloads))
	for i, p := range payloads {
		vals[i] = p
	}
	return c.client.RPush(ctx, c.key, vals...).Err()
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
