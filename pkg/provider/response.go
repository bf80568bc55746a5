package provider

import (
	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// ResponseConfig configures a `!response` provider (
// "Response"): unlike list/range/file, nothing feeds it in the
// background — endpoints write into it via `provides`/`logs` blocks as
// requests complete.
type ResponseConfig struct {
	BufferSize int
	AutoReturn AutoReturnPolicy
}

// NewResponse wires a response provider with no feeder goroutine: its
// sender is driven entirely by the request pipeline's `provides` dispatch.
func NewResponse(name string, cfg ResponseConfig) *Provider {
	limit, auto := cfg.BufferSize, cfg.BufferSize == 0
	if auto {
		limit = 5
	}
	var sender *channel.Sender[jsonvalue.Value]
	var receiver *channel.Receiver[jsonvalue.Value]
	if auto {
		sender, receiver = channel.NewAuto[jsonvalue.Value](limit, name)
	} else {
		sender, receiver = channel.New[jsonvalue.Value](limit, name)
	}

	return &Provider{
		name:       name,
		receiver:   receiver,
		sender:     sender,
		autoReturn: cfg.AutoReturn,
		stop:       nil,
	}
}
