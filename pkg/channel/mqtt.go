package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/absmach/fedasync/pkg/mqtt"
)

type mqttChannel struct {
	pubsub mqtt.PubSub
	base   string
	logger *slog.Logger
	queues *queues

	mu         sync.Mutex
	subscribed map[string]struct{}
	closed     bool
}

// NewMQTT maps routing keys to topics under base. Messages are buffered per
// queue once the queue is subscribed, dropping the oldest when full.
func NewMQTT(pubsub mqtt.PubSub, base string, capacity int, logger *slog.Logger) Channel {
	return &mqttChannel{
		pubsub:     pubsub,
		base:       strings.TrimSuffix(base, "/"),
		logger:     logger,
		queues:     newQueues(capacity),
		subscribed: make(map[string]struct{}),
	}
}

func (c *mqttChannel) topic(key string) string {
	if c.base == "" {
		return key
	}

	return fmt.Sprintf("%s/%s", c.base, key)
}

func (c *mqttChannel) Publish(ctx context.Context, key string, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	return c.pubsub.Publish(ctx, c.topic(key), payload)
}

func (c *mqttChannel) Subscribe(ctx context.Context, queues ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	for _, q := range queues {
		if err := ValidateKey(q); err != nil {
			return err
		}
		if _, ok := c.subscribed[q]; ok {
			continue
		}
		queue := q
		handler := func(_ string, payload []byte) error {
			c.queues.push(queue, payload)

			return nil
		}
		if err := c.pubsub.Subscribe(ctx, c.topic(q), handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", q, err)
		}
		c.subscribed[q] = struct{}{}
		c.logger.Debug("subscribed to queue", slog.String("queue", q), slog.String("topic", c.topic(q)))
	}

	return nil
}

func (c *mqttChannel) Poll(ctx context.Context, queue string) ([]byte, error) {
	if err := c.Subscribe(ctx, queue); err != nil {
		return nil, err
	}

	return c.queues.pop(queue), nil
}

func (c *mqttChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}
	c.closed = true
	topics := make([]string, 0, len(c.subscribed))
	for q := range c.subscribed {
		topics = append(topics, c.topic(q))
	}
	c.mu.Unlock()

	for _, t := range topics {
		if err := c.pubsub.Unsubscribe(ctx, t); err != nil {
			c.logger.Warn("failed to unsubscribe", slog.String("topic", t), slog.Any("error", err))
		}
	}

	return c.pubsub.Disconnect(ctx)
}

func (c *mqttChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
