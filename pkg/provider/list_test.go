package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

func TestListExhaustsWithoutRepeat(t *testing.T) {
	p := NewList("l", ListConfig{
		Values: []jsonvalue.Value{jsonvalue.Int(1), jsonvalue.Int(2)},
	})
	defer p.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v1, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	v2, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, jsonvalue.Int(1), v1)
	assert.Equal(t, jsonvalue.Int(2), v2)

	_, err = p.Receiver().Recv(ctx)
	require.Error(t, err) // exhausted, no repeat
}

func TestListEmptyWithRepeatNeverYieldsOrPanics(t *testing.T) {
	p := NewList("l", ListConfig{Values: nil, Repeat: true})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Receiver().Recv(ctx)
	require.Error(t, err) // feeder exits immediately, stream ends
}

func TestListAutoReturnReinsertsValue(t *testing.T) {
	p := NewList("l", ListConfig{
		Values:     []jsonvalue.Value{jsonvalue.Int(1)},
		AutoReturn: AutoReturnForce,
	})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	ticket := NewTicket(p, v)
	require.NoError(t, ticket.Return(ctx))

	got, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}
