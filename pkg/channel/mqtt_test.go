package channel_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/mqtt"
	"github.com/absmach/fedasync/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMQTTChannel(t *testing.T) {
	ctx := context.Background()
	ps := new(mocks.MockPubSub)
	ch := channel.NewMQTT(ps, "fl/run", 2, slog.Default())

	var handler mqtt.Handler
	ps.On("Subscribe", ctx, "fl/run/inbox.A", mock.Anything).
		Run(func(args mock.Arguments) {
			handler = args.Get(2).(mqtt.Handler)
		}).
		Return(nil).Once()

	require.NoError(t, channel.Subscribe(ctx, ch, channel.InboxKey("A")))
	require.NoError(t, channel.Subscribe(ctx, ch, channel.InboxKey("A")), "second subscribe is a no-op")
	require.NotNil(t, handler)

	payload, err := ch.Poll(ctx, channel.InboxKey("A"))
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, handler("fl/run/inbox.A", []byte("1")))
	require.NoError(t, handler("fl/run/inbox.A", []byte("2")))
	require.NoError(t, handler("fl/run/inbox.A", []byte("3")))

	payload, err = ch.Poll(ctx, channel.InboxKey("A"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), payload, "oldest payload is dropped when the buffer is full")

	ps.On("Publish", ctx, "fl/run/update", []byte("u")).Return(nil).Once()
	require.NoError(t, ch.Publish(ctx, channel.UpdateKey, []byte("u")))

	ps.On("Unsubscribe", ctx, "fl/run/inbox.A").Return(nil).Once()
	ps.On("Disconnect", ctx).Return(nil).Once()
	require.NoError(t, ch.Close(ctx))
	assert.ErrorIs(t, ch.Publish(ctx, channel.UpdateKey, []byte("u")), channel.ErrClosed)

	ps.AssertExpectations(t)
}

func TestMQTTChannelSubscribeError(t *testing.T) {
	ctx := context.Background()
	ps := new(mocks.MockPubSub)
	ch := channel.NewMQTT(ps, "fl", 2, slog.Default())

	errBroker := errors.New("broker unavailable")
	ps.On("Subscribe", ctx, "fl/register", mock.Anything).Return(errBroker)

	_, err := ch.Poll(ctx, channel.RegisterKey)
	assert.ErrorIs(t, err, errBroker)
}

func TestSubscribeNoopForPullBackends(t *testing.T) {
	ch := channel.NewBroker(1).Channel()
	assert.NoError(t, channel.Subscribe(context.Background(), ch, channel.RegisterKey))
}
