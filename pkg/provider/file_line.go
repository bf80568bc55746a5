package provider

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// FileLineConfig configures a `!file` provider in "line" format: each
// non-empty line of the file becomes a string value (
// "File").
type FileLineConfig struct {
	Path       string
	Repeat     bool
	Random     bool
	Unique     bool
	Comment    string // lines with this prefix are skipped, "" disables
	BufferSize int
	AutoReturn AutoReturnPolicy
}

// NewFileLine starts a file-line provider's feeder goroutine. Errors opening
// or reading the file surface on the returned error channel receiver's
// termination: the feeder closes its sender and the error itself is
// reported through errCh for the caller (engine) to log.
func NewFileLine(name string, cfg FileLineConfig, errCh chan<- error) *Provider {
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

		lines, err := readLines(cfg.Path, cfg.Comment)
		if err != nil {
			if errCh != nil {
				errCh <- err
			}
			return
		}
		if len(lines) == 0 {
			return
		}

		values := make([]jsonvalue.Value, len(lines))
		for i, l := range lines {
			values[i] = jsonvalue.String(l)
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

func readLines(path, comment string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if comment != "" && len(line) >= len(comment) && line[:len(comment)] == comment {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return lines, nil
}
