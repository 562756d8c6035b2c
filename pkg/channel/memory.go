package channel

import (
	"context"
	"sync/atomic"
)

// Broker is an in-process message bus shared by every handle it creates.
type Broker struct {
	queues *queues
}

func NewBroker(capacity int) *Broker {
	return &Broker{queues: newQueues(capacity)}
}

// Channel returns a handle on the broker. Closing a handle does not affect
// the broker or other handles.
func (b *Broker) Channel() Channel {
	return &memoryChannel{broker: b}
}

// Dropped reports how many payloads were evicted from queue because it was full.
func (b *Broker) Dropped(queue string) uint64 {
	return b.queues.dropped(queue)
}

type memoryChannel struct {
	broker *Broker
	closed atomic.Bool
}

func (c *memoryChannel) Publish(ctx context.Context, key string, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.broker.queues.push(key, payload)

	return nil
}

func (c *memoryChannel) Poll(ctx context.Context, queue string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidateKey(queue); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return c.broker.queues.pop(queue), nil
}

func (c *memoryChannel) Close(ctx context.Context) error {
	c.closed.Store(true)

	return nil
}
