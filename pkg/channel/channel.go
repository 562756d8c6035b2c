// Package channel carries protocol payloads between clients and the
// coordinator. Delivery is at-least-once and unordered; Poll never blocks.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RegisterKey = "register"
	UpdateKey   = "update"
	inboxPrefix = "inbox."

	Memory = "memory"
	MQTT   = "mqtt"
	Redis  = "redis"

	DefaultCapacity = 1024
)

var (
	ErrClosed   = errors.New("channel closed")
	ErrEmptyKey = errors.New("empty routing key")
)

type Channel interface {
	// Publish sends payload to every consumer of key.
	Publish(ctx context.Context, key string, payload []byte) error
	// Poll returns the next payload queued under queue, or nil with a nil
	// error when nothing is available.
	Poll(ctx context.Context, queue string) ([]byte, error)
	Close(ctx context.Context) error
}

// Subscriber is implemented by push-based backends that only see
// messages published after a queue has been subscribed.
type Subscriber interface {
	Subscribe(ctx context.Context, queues ...string) error
}

// InboxKey is the queue a single client receives global round messages on.
func InboxKey(clientID string) string {
	return inboxPrefix + clientID
}

// Subscribe declares interest in queues on backends that need it and is a
// no-op elsewhere.
func Subscribe(ctx context.Context, ch Channel, queues ...string) error {
	s, ok := ch.(Subscriber)
	if !ok {
		return nil
	}

	return s.Subscribe(ctx, queues...)
}

func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if strings.ContainsAny(key, "/#+ ") {
		return fmt.Errorf("invalid routing key %q", key)
	}

	return nil
}
