package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

type redisChannel struct {
	client    *redis.Client
	keyPrefix string
	capacity  int64
	closed    atomic.Bool
}

// NewRedis stores each queue as a list. Publish appends and trims the list
// to capacity; Poll pops from the head.
func NewRedis(client *redis.Client, keyPrefix string, capacity int) Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if keyPrefix == "" {
		keyPrefix = "fedasync:"
	}

	return &redisChannel{
		client:    client,
		keyPrefix: keyPrefix,
		capacity:  int64(capacity),
	}
}

func (c *redisChannel) listKey(key string) string {
	return c.keyPrefix + "queue:" + key
}

func (c *redisChannel) Publish(ctx context.Context, key string, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	lk := c.listKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, lk, payload)
		pipe.LTrim(ctx, lk, -c.capacity, -1)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", key, err)
	}

	return nil
}

func (c *redisChannel) Poll(ctx context.Context, queue string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidateKey(queue); err != nil {
		return nil, err
	}

	data, err := c.client.LPop(ctx, c.listKey(queue)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to poll %s: %w", queue, err)
	}

	return data, nil
}

func (c *redisChannel) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.client.Close()
}
