package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-kit/log/level"

	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/template"
)

// Sink implements httpengine.LogSink: it owns one destination writer per
// named logger (stdout, stderr, or an opened file) and writes each
// logged value as one line of JSON, honoring a logger's pretty/limit/kill
// settings (`loggers` block).
type Sink struct {
	mu       sync.Mutex
	loggers  map[string]config.ResolvedLogger
	writers  map[string]io.Writer
	closers  []io.Closer
	counts   map[string]int
	onKilled func(loggerName string)
}

// NewSink opens every logger's destination (file loggers are opened once,
// up front, and reused for the life of the run) and returns a Sink ready
// to receive Log calls from any endpoint goroutine. onKilled, if non-nil,
// is invoked the first time a `kill: true` logger's limit is reached —
// internal/engine wires this to its shutdown trigger.
func NewSink(loggers map[string]config.ResolvedLogger, rt *template.Runtime, onKilled func(string)) (*Sink, error) {
	s := &Sink{
		loggers:  loggers,
		writers:  make(map[string]io.Writer, len(loggers)),
		counts:   make(map[string]int, len(loggers)),
		onKilled: onKilled,
	}
	for name, lg := range loggers {
		w, err := openDestination(lg.To, rt)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("logging: opening destination for logger %q: %w", name, err)
		}
		s.writers[name] = w
		if c, ok := w.(io.Closer); ok && lg.To.Kind == config.LogToFile {
			s.closers = append(s.closers, c)
		}
	}
	return s, nil
}

func openDestination(to config.ResolvedLogTo, rt *template.Runtime) (io.Writer, error) {
	switch to.Kind {
	case config.LogToStdout:
		return os.Stdout, nil
	case config.LogToStderr:
		return os.Stderr, nil
	case config.LogToFile:
		path, ok := to.File.IsLiteral()
		if !ok {
			var err error
			path, err = to.File.Evaluate(context.Background(), rt, nil)
			if err != nil {
				return nil, fmt.Errorf("evaluating file path: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", path, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown log destination kind %v", to.Kind)
	}
}

// Log writes every value produced by one endpoint's `logs[name]` query to
// that logger's destination, dropping further lines (and triggering
// onKilled once, if configured) once the logger's limit is reached.
func (s *Sink) Log(name string, values []jsonvalue.Value) error {
	lg, ok := s.loggers[name]
	if !ok {
		return fmt.Errorf("logging: unknown logger %q", name)
	}
	w := s.writers[name]

	for _, v := range values {
		s.mu.Lock()
		if lg.Limit != nil && s.counts[name] >= *lg.Limit {
			s.mu.Unlock()
			continue
		}
		s.counts[name]++
		hitLimit := lg.Limit != nil && s.counts[name] >= *lg.Limit
		s.mu.Unlock()

		line, err := marshalLine(v, lg.Pretty)
		if err != nil {
			level.Debug(Logger).Log("msg", "log line marshal failed", "logger", name, "err", err)
			continue
		}
		if _, err := fmt.Fprintln(w, string(line)); err != nil {
			level.Debug(Logger).Log("msg", "log write failed", "logger", name, "err", err)
		}

		if hitLimit && lg.Kill && s.onKilled != nil {
			s.onKilled(name)
		}
	}
	return nil
}

func marshalLine(v jsonvalue.Value, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Close releases every opened file destination. Safe to call multiple
// times; stdout/stderr writers are left open since the process owns them.
func (s *Sink) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}
