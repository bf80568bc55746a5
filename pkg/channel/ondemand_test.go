package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnDemandSignalsWhenQueueEmpty(t *testing.T) {
	_, receiver := New[int](5, "")
	od := NewOnDemand(receiver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, od.Next(ctx))
	od.NotifyProduced(true)
}

func TestOnDemandTerminatesWhenReceiversGone(t *testing.T) {
	sender, receiver := New[int](5, "")
	_ = sender
	od := NewOnDemand(receiver)
	receiver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := od.Next(ctx)
	// with no receiver left the adapter reports end of stream instead of
	// signalling again.
	require.ErrorIs(t, err, ErrClosed)
}
