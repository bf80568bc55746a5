package provider

import (
	"context"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// ListConfig configures a finite, in-memory list provider.
type ListConfig struct {
	Values     []jsonvalue.Value
	Repeat     bool // cycle forever once drained
	Random     bool // pre-shuffle then drain, or draw uniformly at random each time
	Unique     bool
	BufferSize int // 0 => auto
	AutoReturn AutoReturnPolicy
}

// NewList starts a list provider's feeder goroutine and returns the wired
// Provider. An empty list with Repeat=true never yields and never panics
// (boundary behavior): the feeder goroutine simply exits
// immediately without ever sending, and the channel observes end-of-stream
// once its sole sender closes.
func NewList(name string, cfg ListConfig) *Provider {
	limit, auto := cfg.BufferSize, cfg.BufferSize == 0
	if auto {
		limit = 5
	}
	var sender *channel.Sender[jsonvalue.Value]
	var receiver *channel.Receiver[jsonvalue.Value]
	if cfg.Unique {
		sender, receiver = channel.NewUniqueValue(limit, auto, name)
	} else if auto {
		sender, receiver = channel.NewAuto[jsonvalue.Value](limit, name)
	} else {
		sender, receiver = channel.New[jsonvalue.Value](limit, name)
	}

	ctx, cancel := context.WithCancel(context.Background())

	values := make([]jsonvalue.Value, len(cfg.Values))
	copy(values, cfg.Values)

	go func() {
		defer sender.Close()
		if len(values) == 0 {
			return
		}
		r := newShuffler(len(values))
		if cfg.Random && !cfg.Repeat {
			r.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
		}
		for {
			if cfg.Random && cfg.Repeat {
				// each draw picks uniformly at random, forever
				for {
					v := values[r.Intn(len(values))]
					if err := sender.Send(ctx, v); err != nil {
						return
					}
				}
			}
			for _, v := range values {
				if err := sender.Send(ctx, v); err != nil {
					return
				}
			}
			if !cfg.Repeat {
				return
			}
		}
	}()

	return &Provider{
		name:       name,
		receiver:   receiver,
		sender:     sender.Clone(), // lets auto-return tickets reinsert consumed values
		autoReturn: cfg.AutoReturn,
		stop:       cancel,
	}
}
