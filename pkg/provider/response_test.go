package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

func TestResponseProviderHasNoFeeder(t *testing.T) {
	p := NewResponse("response", ResponseConfig{})
	defer p.Stop() // no-op: nil stop func

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Receiver().Recv(ctx)
	require.Error(t, err) // nothing written yet, should time out waiting
}

func TestResponseProviderAcceptsDispatchedValues(t *testing.T) {
	p := NewResponse("response", ResponseConfig{})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Sender().Send(ctx, jsonvalue.Int(200)))
	v, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, jsonvalue.Int(200), v)
}
