package provider

import (
	"context"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// RangeConfig configures an arithmetic-progression provider:
// start..=end step step.
type RangeConfig struct {
	Start      int64
	End        int64
	Step       int64 // >= 1
	Repeat     bool
	Unique     bool
	BufferSize int
	AutoReturn AutoReturnPolicy
}

// NewRange starts a range provider's feeder goroutine. A step larger than
// end-start yields exactly one value (start) as a boundary case.
func NewRange(name string, cfg RangeConfig) *Provider {
	step := cfg.Step
	if step < 1 {
		step = 1
	}
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

	go func() {
		defer sender.Close()
		for {
			if cfg.Start <= cfg.End {
				for v := cfg.Start; v <= cfg.End; v += step {
					if err := sender.Send(ctx, jsonvalue.Int(v)); err != nil {
						return
					}
				}
			} else {
				for v := cfg.Start; v >= cfg.End; v -= step {
					if err := sender.Send(ctx, jsonvalue.Int(v)); err != nil {
						return
					}
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
		sender:     sender.Clone(),
		autoReturn: cfg.AutoReturn,
		stop:       cancel,
	}
}
