package channel_test

import (
	"context"
	"testing"

	"github.com/absmach/fedasync/pkg/channel"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisChannel(t *testing.T, capacity int) channel.Channel {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return channel.NewRedis(client, "test:", capacity)
}

func backends(t *testing.T, capacity int) map[string]func() (pub, sub channel.Channel) {
	return map[string]func() (channel.Channel, channel.Channel){
		channel.Memory: func() (channel.Channel, channel.Channel) {
			b := channel.NewBroker(capacity)

			return b.Channel(), b.Channel()
		},
		channel.Redis: func() (channel.Channel, channel.Channel) {
			mr := miniredis.RunT(t)
			pub := channel.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", capacity)
			sub := channel.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", capacity)

			return pub, sub
		},
	}
}

func TestPublishPoll(t *testing.T) {
	for name, mk := range backends(t, 8) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pub, sub := mk()

			payload, err := sub.Poll(ctx, channel.UpdateKey)
			require.NoError(t, err)
			assert.Nil(t, payload, "empty queue must return nil payload")

			require.NoError(t, pub.Publish(ctx, channel.UpdateKey, []byte("one")))
			require.NoError(t, pub.Publish(ctx, channel.UpdateKey, []byte("two")))
			require.NoError(t, pub.Publish(ctx, channel.InboxKey("A"), []byte("inbox")))

			payload, err = sub.Poll(ctx, channel.UpdateKey)
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), payload)
			payload, err = sub.Poll(ctx, channel.UpdateKey)
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), payload)
			payload, err = sub.Poll(ctx, channel.UpdateKey)
			require.NoError(t, err)
			assert.Nil(t, payload)

			payload, err = sub.Poll(ctx, channel.InboxKey("B"))
			require.NoError(t, err)
			assert.Nil(t, payload, "inboxes are per client")
			payload, err = sub.Poll(ctx, channel.InboxKey("A"))
			require.NoError(t, err)
			assert.Equal(t, []byte("inbox"), payload)
		})
	}
}

func TestBoundedQueueDropsOldest(t *testing.T) {
	for name, mk := range backends(t, 2) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pub, sub := mk()

			for _, p := range []string{"a", "b", "c"} {
				require.NoError(t, pub.Publish(ctx, channel.RegisterKey, []byte(p)))
			}

			var got []string
			for {
				payload, err := sub.Poll(ctx, channel.RegisterKey)
				require.NoError(t, err)
				if payload == nil {
					break
				}
				got = append(got, string(payload))
			}
			assert.Equal(t, []string{"b", "c"}, got)
		})
	}
}

func TestClosedChannel(t *testing.T) {
	for name, mk := range backends(t, 2) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pub, _ := mk()

			require.NoError(t, pub.Close(ctx))
			assert.ErrorIs(t, pub.Publish(ctx, channel.UpdateKey, []byte("x")), channel.ErrClosed)
			_, err := pub.Poll(ctx, channel.UpdateKey)
			assert.ErrorIs(t, err, channel.ErrClosed)
			assert.NoError(t, pub.Close(ctx), "close is idempotent")
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	ch := channel.NewBroker(1).Channel()
	ctx := context.Background()

	cases := []struct {
		desc string
		key  string
	}{
		{desc: "empty", key: ""},
		{desc: "blank", key: "  "},
		{desc: "topic separator", key: "a/b"},
		{desc: "wildcard", key: "inbox.#"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Error(t, ch.Publish(ctx, tc.key, []byte("x")))
			_, err := ch.Poll(ctx, tc.key)
			assert.Error(t, err)
		})
	}
}

func TestMemoryHandlesShareBroker(t *testing.T) {
	ctx := context.Background()
	b := channel.NewBroker(1)
	a, c := b.Channel(), b.Channel()

	require.NoError(t, a.Close(ctx))
	require.NoError(t, c.Publish(ctx, channel.UpdateKey, []byte("x")))
	require.NoError(t, c.Publish(ctx, channel.UpdateKey, []byte("y")))
	assert.Equal(t, uint64(1), b.Dropped(channel.UpdateKey))

	payload, err := c.Poll(ctx, channel.UpdateKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), payload)
}

func TestRedisPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	ch := newRedisChannel(t, 4)

	buf := []byte("abc")
	require.NoError(t, ch.Publish(ctx, channel.UpdateKey, buf))
	buf[0] = 'x'

	payload, err := ch.Poll(ctx, channel.UpdateKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), payload)
}
