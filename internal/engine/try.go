package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/httpengine"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/logging"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/stats"
	"github.com/grafana/pewpewgo/pkg/template"
)

// TryOptions configures `pewpewgo try`: run every endpoint once, outside
// load_pattern/peak_load entirely, for interactive config debugging.
type TryOptions struct {
	RunLoggers       bool     // --loggers: also fire each endpoint's `logs` queries
	File             string   // --file: write output here instead of stdout
	Format           string   // --format: "human" (default) or "json"
	Include          []string // --include key(=|!=)value, repeatable
	ResultsDirectory string
}

// includeFilter is one parsed --include entry. Value "*" matches any tag
// value.
type includeFilter struct {
	key   string
	value string
	not   bool
}

var includeFilterPattern = regexp.MustCompile(`^(.*?)(!=|=)(.*)$`)

func parseIncludeFilters(raw []string) ([]includeFilter, error) {
	out := make([]includeFilter, 0, len(raw))
	for _, s := range raw {
		m := includeFilterPattern.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("engine: --include filter %q must be in the format key=value or key!=value", s)
		}
		out = append(out, includeFilter{key: m[1], value: m[3], not: m[2] == "!="})
	}
	return out, nil
}

// matches reports whether tags (rendered from whatever of an endpoint's
// tags can be evaluated without drawing a provider) satisfy every filter.
// A filter naming a tag that couldn't be statically rendered never
// matches an Eq filter and always matches a Ne one.
func (f includeFilter) matches(tags map[string]string) bool {
	v, ok := tags[f.key]
	if f.value == "*" {
		if f.not {
			return !ok
		}
		return ok
	}
	eq := ok && v == f.value
	if f.not {
		return !eq
	}
	return eq
}

// staticTags renders whichever of an endpoint's tags don't require a
// provider draw (the reserved _id/method/url tags and any literal user
// tag), for --include filtering before a single request is attempted.
func staticTags(ctx context.Context, rt *template.Runtime, ep *config.ResolvedEndpoint) map[string]string {
	out := make(map[string]string, len(ep.Tags))
	for name, t := range ep.Tags {
		v, err := t.Evaluate(ctx, rt, nil)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out
}

// Try runs every endpoint in resolved exactly once, ignoring
// load_pattern/peak_load/max_parallel_requests, printing one
// httpengine.TryResult per matching endpoint to opts.File (or stdout).
func Try(ctx context.Context, resolved *config.Resolved, opts TryOptions) error {
	filters, err := parseIncludeFilters(opts.Include)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if opts.File != "" {
		path, err := ResolveResultsPath(opts.ResultsDirectory, opts.File)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("engine: opening --file %q: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	rt, err := template.NewRuntime("")
	if err != nil {
		return fmt.Errorf("engine: starting template runtime: %w", err)
	}
	defer rt.Close()

	client := httpengine.NewClient(resolved.Client.RequestTimeout, resolved.Client.Keepalive, 0)

	providerErrCh := make(chan error, 64)
	providers := make(map[string]*provider.Provider, len(resolved.Providers))
	for name, rp := range resolved.Providers {
		providers[name] = rp.Build(name, providerErrCh)
	}
	defer closeProviders(providers)

	agg := stats.NewAggregator(resolved.General.BucketSize)
	runDone := make(chan struct{})
	aggCtx, cancelAgg := context.WithCancel(ctx)
	go func() { defer close(runDone); _ = agg.Run(aggCtx) }()
	defer func() { cancelAgg(); <-runDone }()

	var sink *logging.Sink
	if opts.RunLoggers {
		sink, err = logging.NewSink(resolved.Loggers, rt, nil)
		if err != nil {
			return fmt.Errorf("engine: building log sink: %w", err)
		}
		defer sink.Close()
	}

	deps := httpengine.Deps{
		Client:    client,
		Runtime:   rt,
		Providers: providers,
		Stats:     agg,
		Logger:    logging.Logger,
	}
	if sink != nil {
		deps.Logs = sink
	}

	for i := range resolved.Endpoints {
		ep := &resolved.Endpoints[i]

		tags := staticTags(ctx, rt, ep)
		included := true
		for _, f := range filters {
			if !f.matches(tags) {
				included = false
				break
			}
		}
		if !included {
			continue
		}

		endpoint := httpengine.NewEndpoint(i, ep, resolved.Client.Headers, deps, nil)
		result, err := endpoint.TryOnce(ctx, opts.RunLoggers)
		if err := writeTryResult(out, opts.Format, result, err); err != nil {
			return err
		}
	}

	return nil
}

func writeTryResult(w io.Writer, format string, result httpengine.TryResult, runErr error) error {
	switch format {
	case "", "human":
		return writeTryResultHuman(w, result, runErr)
	case "json":
		return writeTryResultJSON(w, result, runErr)
	default:
		return fmt.Errorf("engine: unknown --format %q (want human or json)", format)
	}
}

func writeTryResultHuman(w io.Writer, result httpengine.TryResult, runErr error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", result.Name)
	if runErr != nil {
		fmt.Fprintf(&b, "error: %v\n", runErr)
	}
	if !result.Request.IsNull() {
		fmt.Fprintf(&b, "request:  %s\n", result.Request.Stable())
	}
	if !result.Response.IsNull() {
		fmt.Fprintf(&b, "response: %s\n", result.Response.Stable())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type tryResultJSON struct {
	Name     string          `json:"name"`
	Error    string          `json:"error,omitempty"`
	Request  jsonvalue.Value `json:"request,omitempty"`
	Response jsonvalue.Value `json:"response,omitempty"`
}

func writeTryResultJSON(w io.Writer, result httpengine.TryResult, runErr error) error {
	out := tryResultJSON{Name: result.Name, Request: result.Request, Response: result.Response}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	line, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}
