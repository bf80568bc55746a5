package provider

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// FileCSVConfig configures a `!file` provider in "csv" format. Dialect
// parsing (quoting, embedded commas/newlines) uses encoding/csv: the
// stdlib reader already implements RFC 4180 quoting correctly (see
// DESIGN.md).
type FileCSVConfig struct {
	Path       string
	Headers    bool // first row names the fields; rows decode to objects
	Comment    rune // 0 disables
	Repeat     bool
	Random     bool
	Unique     bool
	BufferSize int
	AutoReturn AutoReturnPolicy
}

func NewFileCSV(name string, cfg FileCSVConfig, errCh chan<- error) *Provider {
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

		values, err := readCSVValues(cfg.Path, cfg.Headers, cfg.Comment)
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

func readCSVValues(path string, headers bool, comment rune) ([]jsonvalue.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if comment != 0 {
		r.Comment = comment
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var cols []string
	start := 0
	if headers {
		cols = rows[0]
		start = 1
	}

	values := make([]jsonvalue.Value, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if headers {
			keys := make([]string, 0, len(cols))
			obj := make(map[string]jsonvalue.Value, len(cols))
			for i, col := range cols {
				var cell string
				if i < len(row) {
					cell = row[i]
				}
				keys = append(keys, col)
				obj[col] = jsonvalue.String(cell)
			}
			values = append(values, jsonvalue.Object(keys, obj))
		} else {
			keys := make([]string, len(row))
			obj := make(map[string]jsonvalue.Value, len(row))
			for i, cell := range row {
				k := strconv.Itoa(i)
				keys[i] = k
				obj[k] = jsonvalue.String(cell)
			}
			values = append(values, jsonvalue.Object(keys, obj))
		}
	}
	return values, nil
}
