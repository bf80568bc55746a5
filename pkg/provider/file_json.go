package provider

import (
	"context"
	"os"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// FileJSONConfig configures a `!file` provider in "json" format: the file
// holds a sequence of whitespace/newline-separated JSON values (not
// necessarily a single top-level array), decoded one at a time with
// jsonvalue.ParseJSONPrefix.
type FileJSONConfig struct {
	Path       string
	Repeat     bool
	Random     bool
	Unique     bool
	BufferSize int
	AutoReturn AutoReturnPolicy
}

func NewFileJSON(name string, cfg FileJSONConfig, errCh chan<- error) *Provider {
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

		values, err := readJSONValues(cfg.Path)
		if err != nil {
			if errCh != nil {
				errCh <- err
			}
			return
		}
		if len(values) == 0 {
			return
		}

		r := newShuffler(len(values))
		if cfg.Random && !cfg.Repeat {
			r.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
		}

		for {
			if cfg.Random && cfg.Repeat {
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
		sender:     sender.Clone(),
		autoReturn: cfg.AutoReturn,
		stop:       cancel,
	}
}

func readJSONValues(path string) ([]jsonvalue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var values []jsonvalue.Value
	for len(data) > 0 {
		// skip leading whitespace between values
		i := 0
		for i < len(data) && isJSONSpace(data[i]) {
			i++
		}
		data = data[i:]
		if len(data) == 0 {
			break
		}
		v, n, err := jsonvalue.ParseJSONPrefix(data)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		data = data[n:]
	}
	return values, nil
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
