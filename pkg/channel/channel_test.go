package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

func TestTrySendFullThenClosed(t *testing.T) {
	sender, receiver := New[int](1, "")

	assert.Equal(t, Success, sender.TrySend(1))
	assert.Equal(t, Full, sender.TrySend(2)) // limit-1 channel: second try_send is Full

	receiver.Close()
	assert.Equal(t, Closed, sender.TrySend(3))
}

func TestSendFailsOnceReceiverGone(t *testing.T) {
	sender, receiver := New[int](5, "")
	receiver.Close()
	ctx := context.Background()
	err := sender.Send(ctx, 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestRecvEndOfStreamOnceSendersGone(t *testing.T) {
	sender, receiver := New[int](5, "")
	sender.Close()
	_, err := receiver.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestAutoLimitGrowsAfterFullDrain(t *testing.T) {
	sender, receiver := NewAuto[int](2, "")
	ctx := context.Background()

	require.NoError(t, sender.Send(ctx, 1))
	require.NoError(t, sender.Send(ctx, 2)) // now at limit (2)
	assert.Equal(t, int64(2), receiver.Limit())

	v, err := receiver.Recv(ctx) // oldLen==limit -> hasMaxed=true
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = receiver.Recv(ctx) // newLen==0 && hasMaxed -> limit grows to 3
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	assert.Equal(t, int64(3), receiver.Limit())
}

func TestAutoLimitNeverShrinks(t *testing.T) {
	sender, receiver := NewAuto[int](2, "")
	ctx := context.Background()
	for round := 0; round < 3; round++ {
		require.NoError(t, sender.Send(ctx, 1))
		require.NoError(t, sender.Send(ctx, 2))
		before := receiver.Limit()
		_, _ = receiver.Recv(ctx)
		_, _ = receiver.Recv(ctx)
		assert.GreaterOrEqual(t, receiver.Limit(), before)
	}
}

func TestForceSendBypassesLimit(t *testing.T) {
	sender, receiver := New[int](1, "")
	require.NoError(t, sender.Send(context.Background(), 1))
	sender.ForceSend(2) // limit is 1, but force bypasses it
	assert.Equal(t, 2, receiver.Len())
}

func TestUniqueValueRejectsDuplicateUntilConsumed(t *testing.T) {
	sender, receiver := NewUniqueValue(10, false, "")
	ctx := context.Background()

	a := jsonvalue.String("a")
	require.NoError(t, sender.Send(ctx, a))
	require.Equal(t, Success, sender.TrySend(a)) // silently coalesced, not an error
	assert.Equal(t, 1, receiver.Len())

	v, err := receiver.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, v)

	require.NoError(t, sender.Send(ctx, a)) // now free to re-insert
	assert.Equal(t, 1, receiver.Len())
}

func TestBlockingSendUnblocksOnSpace(t *testing.T) {
	sender, receiver := New[int](1, "")
	ctx := context.Background()
	require.NoError(t, sender.Send(ctx, 1))

	done := make(chan error, 1)
	go func() {
		done <- sender.Send(ctx, 2)
	}()

	select {
	case <-done:
		t.Fatal("send should have blocked on a full limit-1 channel")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := receiver.Recv(ctx)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked send never woke up after space freed")
	}
}
