package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/orderflow/internal/messaging"
)

func TestBus_SendReceiveAck(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close() //nolint:errcheck
	ctx := context.Background()

	body := []byte(`{"orderId":"a"}`)
	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1", CorrelationID: "c-1", Body: body}))
	body[0] = 'X'

	d, err := bus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", d.Message().ID)
	assert.Equal(t, "c-1", d.Message().CorrelationID)
	assert.Equal(t, `{"orderId":"a"}`, string(d.Message().Body))
	assert.Equal(t, 1, d.DeliveryCount())

	require.NoError(t, d.Ack(ctx))
	assert.ErrorIs(t, d.Ack(ctx), ErrAlreadySettled)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_AbandonRedeliversWithIncrementedCount(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close() //nolint:errcheck
	ctx := context.Background()

	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1"}))

	for want := 1; want <= 3; want++ {
		d, err := bus.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, d.DeliveryCount())
		require.NoError(t, d.Abandon(ctx))
	}
	assert.Equal(t, 1, bus.Len())
}

func TestBus_DeadLetter(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close() //nolint:errcheck
	ctx := context.Background()

	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1"}))
	d, err := bus.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, d.DeadLetter(ctx, "InvalidPayload", "Body did not deserialize into an OrderId"))
	assert.ErrorIs(t, d.Abandon(ctx), ErrAlreadySettled)

	dead := bus.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "m-1", dead[0].Message.ID)
	assert.Equal(t, "InvalidPayload", dead[0].Reason)
	assert.Equal(t, 1, dead[0].DeliveryCount)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_ReceiveHonorsContext(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bus.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_SendBlocksWhenFull(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close() //nolint:errcheck

	require.NoError(t, bus.Send(context.Background(), messaging.Message{ID: "m-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Send(ctx, messaging.Message{ID: "m-2"}), context.DeadlineExceeded)
}

func TestBus_Closed(t *testing.T) {
	bus := NewBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Send(context.Background(), messaging.Message{ID: "m-1"}), messaging.ErrClosed)

	_, err := bus.Receive(context.Background())
	assert.ErrorIs(t, err, messaging.ErrClosed)
}

func TestNewBus_DefaultCapacity(t *testing.T) {
	bus := NewBus(0)
	assert.Equal(t, DefaultCapacity, cap(bus.queue))
}

func TestBus_AbandonDoesNotWaitOnFullQueue(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close() //nolint:errcheck
	ctx := context.Background()

	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1"}))
	d, err := bus.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-2"}))

	abandonCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Abandon(abandonCtx))
	assert.Equal(t, 2, bus.Len())

	redelivered, err := bus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", redelivered.Message().ID)
	assert.Equal(t, 2, redelivered.DeliveryCount())

	next, err := bus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-2", next.Message().ID)
}

func TestBus_AbandonWakesWaitingReceiver(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close() //nolint:errcheck
	ctx := context.Background()

	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1"}))
	d, err := bus.Receive(ctx)
	require.NoError(t, err)

	got := make(chan messaging.Delivery, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		next, err := bus.Receive(waitCtx)
		if err == nil {
			got <- next
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Abandon(ctx))

	next, ok := <-got
	require.True(t, ok, "waiting receiver was not woken")
	assert.Equal(t, "m-1", next.Message().ID)
}

func TestBus_AbandonAfterClose(t *testing.T) {
	bus := NewBus(1)
	ctx := context.Background()

	require.NoError(t, bus.Send(ctx, messaging.Message{ID: "m-1"}))
	d, err := bus.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, d.Abandon(ctx), messaging.ErrClosed)
}
