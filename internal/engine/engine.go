// Package engine wires the fully resolved config (providers, endpoints,
// stats, logging) into a running load test: the orchestration layer
// cmd/pewpewgo calls into for both `run` and `try`. Every subsystem is
// constructed up front, then the caller gets back one object exposing
// Run/Close.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/httpengine"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/logging"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/scheduler"
	"github.com/grafana/pewpewgo/pkg/stats"
	"github.com/grafana/pewpewgo/pkg/template"
)

// RunOptions configures one `pewpewgo run` invocation.
type RunOptions struct {
	OutputFormat     string // "human" (default) or "json"
	StatsFile        string // empty disables the stats file
	StatsFileFormat  string // "json" (ndjson); reserved for future formats
	ResultsDirectory string // base directory the stats file path is joined under
	HedgeDelay       time.Duration
	Lib              string // optional custom JS lib source
}

// Engine owns every live subsystem for one test run: the provider
// registry, the shared HTTP client and JS runtime, the stats aggregator,
// the log sink, and one httpengine.Endpoint per configured endpoint.
type Engine struct {
	resolved  *config.Resolved
	logger    log.Logger
	runtime   *template.Runtime
	client    *httpengine.Client
	providers map[string]*provider.Provider
	agg       *stats.Aggregator
	sink      *logging.Sink
	endpoints []*httpengine.Endpoint

	providerErrCh chan error
	statsFile     *closableFile

	onKill func()
}

// closableFile lets Engine.Close release an opened --stats-file handle
// without internal/engine needing to import os at the call site.
type closableFile struct {
	close func() error
}

// Build constructs every subsystem from a fully Resolved config but does
// not start anything (no goroutine runs until Run is called).
func Build(resolved *config.Resolved, opts RunOptions, onKill func()) (*Engine, error) {
	if err := validateSchedulable(resolved); err != nil {
		return nil, err
	}

	rt, err := template.NewRuntime(opts.Lib)
	if err != nil {
		return nil, fmt.Errorf("engine: starting template runtime: %w", err)
	}

	client := httpengine.NewClient(resolved.Client.RequestTimeout, resolved.Client.Keepalive, opts.HedgeDelay)

	providerErrCh := make(chan error, 64)
	providers := make(map[string]*provider.Provider, len(resolved.Providers))
	for name, rp := range resolved.Providers {
		providers[name] = rp.Build(name, providerErrCh)
	}

	writers, statsFile, err := buildStatsWriters(opts)
	if err != nil {
		closeProviders(providers)
		rt.Close()
		return nil, err
	}
	agg := stats.NewAggregator(resolved.General.BucketSize, writers...)

	sink, err := logging.NewSink(resolved.Loggers, rt, func(name string) {
		level.Warn(logging.Logger).Log("msg", "logger reached its limit and requested shutdown", "logger", name)
		if onKill != nil {
			onKill()
		}
	})
	if err != nil {
		closeProviders(providers)
		rt.Close()
		if statsFile != nil {
			_ = statsFile.close()
		}
		return nil, fmt.Errorf("engine: building log sink: %w", err)
	}

	deps := httpengine.Deps{
		Client:    client,
		Runtime:   rt,
		Providers: providers,
		Stats:     agg,
		Logs:      sink,
		Logger:    logging.Logger,
	}

	endpoints := make([]*httpengine.Endpoint, 0, len(resolved.Endpoints))
	for i := range resolved.Endpoints {
		ep := &resolved.Endpoints[i]
		tick, od, err := buildTickSource(ep, providers)
		if err != nil {
			closeProviders(providers)
			rt.Close()
			sink.Close()
			if statsFile != nil {
				_ = statsFile.close()
			}
			return nil, fmt.Errorf("engine: endpoint %d: %w", i, err)
		}
		endpoint := httpengine.NewEndpoint(i, ep, resolved.Client.Headers, deps, tick)
		if od != nil {
			endpoint = endpoint.WithOnDemand(od)
		}
		endpoints = append(endpoints, endpoint)
	}

	return &Engine{
		resolved:      resolved,
		logger:        logging.Logger,
		runtime:       rt,
		client:        client,
		providers:     providers,
		agg:           agg,
		sink:          sink,
		endpoints:     endpoints,
		providerErrCh: providerErrCh,
		statsFile:     statsFile,
		onKill:        onKill,
	}, nil
}

// validateSchedulable enforces fatal "missing
// load_pattern"/"missing peak_load" config errors: every endpoint that
// isn't on_demand must resolve to a non-empty load pattern and an
// explicit peak rate before a scheduler can be built for it.
func validateSchedulable(resolved *config.Resolved) error {
	for i := range resolved.Endpoints {
		ep := &resolved.Endpoints[i]
		if ep.OnDemand {
			continue
		}
		if len(ep.LoadPattern) == 0 {
			return fmt.Errorf("config: endpoint %d: missing load_pattern", i)
		}
		if ep.PeakLoad == nil {
			return fmt.Errorf("config: endpoint %d: missing peak_load", i)
		}
	}
	return nil
}

// buildTickSource picks the ModInterval or on-demand tick source for one
// endpoint: on_demand endpoints replace the tick source with an on-demand
// receiver. An on_demand endpoint is tied to exactly one destination
// provider: its sole `provides` entry.
func buildTickSource(ep *config.ResolvedEndpoint, providers map[string]*provider.Provider) (scheduler.TickSource, *channel.OnDemand[jsonvalue.Value], error) {
	if ep.OnDemand {
		if len(ep.Provides) != 1 {
			return nil, nil, fmt.Errorf("on_demand endpoint must have exactly one provides entry, got %d", len(ep.Provides))
		}
		var destName string
		for name := range ep.Provides {
			destName = name
		}
		dest, ok := providers[destName]
		if !ok {
			return nil, nil, fmt.Errorf("on_demand endpoint's provides target %q is not a known provider", destName)
		}
		od := channel.NewOnDemand(dest.Receiver())
		return scheduler.NewOnDemandTickSource(od), od, nil
	}

	scale := scheduler.NewLinearScaling(ep.LoadPattern, *ep.PeakLoad)
	return scheduler.NewModIntervalTickSource(scale), nil, nil
}

// Run starts the stats aggregator, the provider error logger, and every
// endpoint's goroutine, and blocks until ctx is cancelled and all of them
// have drained. The first fatal error from any endpoint's tick source is
// returned once everything has stopped.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(e.endpoints))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.agg.Run(ctx); err != nil {
			level.Error(e.logger).Log("msg", "stats aggregator stopped with an error", "err", err)
		}
	}()

	stopErrLog := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.logProviderErrors(stopErrLog)
	}()

	for _, ep := range e.endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ep.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	close(stopErrLog)
	e.agg.Close()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// logProviderErrors forwards every background provider error (file
// reader IO failures after startup) to a rate-limited logger, since a
// broken provider can produce one error per draw and would otherwise
// flood stderr.
func (e *Engine) logProviderErrors(stop <-chan struct{}) {
	limited := logging.RateLimited(e.logger, 5)
	for {
		select {
		case err, ok := <-e.providerErrCh:
			if !ok {
				return
			}
			level.Warn(limited).Log("msg", "provider error", "err", err)
		case <-stop:
			return
		}
	}
}

// Close releases every resource Build opened. Call once after Run
// returns.
func (e *Engine) Close() {
	closeProviders(e.providers)
	e.runtime.Close()
	e.sink.Close()
	if e.statsFile != nil {
		_ = e.statsFile.close()
	}
}

func closeProviders(providers map[string]*provider.Provider) {
	for _, p := range providers {
		p.Stop()
	}
}
