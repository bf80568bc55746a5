package httpengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/query"
	"github.com/grafana/pewpewgo/pkg/scheduler"
	"github.com/grafana/pewpewgo/pkg/stats"
	"github.com/grafana/pewpewgo/pkg/template"
)

// LogSink delivers one logger's query results to wherever config.ResolvedLogTo
// points. pkg/logging supplies the concrete implementation (stdout/stderr/
// file, pretty-printed or compact, honoring a logger's limit/kill fields);
// Endpoint only needs the narrow write surface.
type LogSink interface {
	Log(name string, values []jsonvalue.Value) error
}

// Deps bundles everything an Endpoint needs that is shared across every
// endpoint in a run: the live provider registry, the stats aggregator, the
// owning goroutine's JS runtime, and the HTTP client.
type Deps struct {
	Client    *Client
	Runtime   *template.Runtime
	Providers map[string]*provider.Provider
	Stats     *stats.Aggregator
	Logs      LogSink
	Logger    log.Logger
}

// Endpoint runs the per-endpoint request pipeline: Idle -> Tick -> Drawing
// -> Building -> InFlight -> Decoding -> Dispatching -> Idle, one
// goroutine per endpoint, with load-pattern ticks gated by a ParallelCap
// enforcing max_parallel_requests.
type Endpoint struct {
	id            int
	cfg           *config.ResolvedEndpoint
	clientHeaders []config.ResolvedHeader
	deps          Deps
	tick          scheduler.TickSource
	cap           *scheduler.ParallelCap
	caps          query.Capability
	providerNames []string

	// onDemand is set only for `on_demand` endpoints: the adapter watching
	// the downstream provider they feed. NotifyProduced must be called
	// once per attempt so the adapter knows whether the feed actually
	// advanced.
	onDemand *channel.OnDemand[jsonvalue.Value]
}

// NewEndpoint wires a resolved endpoint config to its tick source (built by
// the caller: ModInterval-driven for ordinary endpoints, on-demand for
// `on_demand` ones) and the shared Deps.
func NewEndpoint(id int, cfg *config.ResolvedEndpoint, clientHeaders []config.ResolvedHeader, deps Deps, tick scheduler.TickSource) *Endpoint {
	maxParallel := 0
	if cfg.MaxParallelRequests != nil {
		maxParallel = *cfg.MaxParallelRequests
	}
	return &Endpoint{
		id:            id,
		cfg:           cfg,
		clientHeaders: clientHeaders,
		deps:          deps,
		tick:          tick,
		cap:           scheduler.NewParallelCap(maxParallel),
		caps:          requiredCapabilities(cfg),
		providerNames: requiredProviderNames(cfg),
	}
}

// WithOnDemand attaches the on-demand adapter this endpoint feeds. Only
// meaningful when cfg.OnDemand is true and tick was built from
// scheduler.NewOnDemandTickSource(od) over the same adapter.
func (e *Endpoint) WithOnDemand(od *channel.OnDemand[jsonvalue.Value]) *Endpoint {
	e.onDemand = od
	return e
}

func (e *Endpoint) name() string {
	if lit, ok := e.cfg.Tags["_id"]; ok {
		if s, ok := lit.IsLiteral(); ok {
			return s
		}
	}
	return fmt.Sprintf("endpoint-%d", e.id)
}

// Run drives the tick source until it ends or ctx is cancelled. Every tick
// that finds the parallel cap saturated is dropped, not queued: the
// endpoint simply waits for the next tick rather than building up a
// backlog of delayed requests.
func (e *Endpoint) Run(ctx context.Context) error {
	for {
		ok, err := e.tick.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("endpoint %s: tick source: %w", e.name(), err)
		}
		if !ok {
			return nil
		}
		if !e.cap.TryAcquire() {
			continue
		}
		go func() {
			defer e.cap.Release()
			e.attempt(ctx)
		}()
	}
}

// attempt runs exactly one request through Drawing, Building, InFlight,
// Decoding, and Dispatching, emitting exactly one stats.Record regardless
// of outcome (testable property 6).
func (e *Endpoint) attempt(ctx context.Context) {
	reqCtx := ctx
	if e.cfg.RequestTimeout != nil {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, *e.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()

	drawn, tickets, err := e.draw(reqCtx)
	if err != nil {
		e.fail(reqCtx, start, stats.KindRecoverableError, "draw", err, nil)
		return
	}
	defer e.returnTickets(reqCtx, tickets)

	built, err := buildRequest(reqCtx, e.deps.Runtime, e.cfg, e.clientHeaders, drawn)
	if err != nil {
		e.fail(reqCtx, start, stats.KindRecoverableError, "build", err, drawn)
		return
	}

	resp, err := e.deps.Client.Do(built.http)
	if err != nil {
		kind := stats.KindRecoverableError
		if errors.Is(err, context.DeadlineExceeded) {
			kind = stats.KindTimeout
		}
		e.fail(reqCtx, start, kind, "send", err, drawn)
		return
	}

	respObj, err := buildResponseObject(resp, e.caps)
	if err != nil {
		e.fail(reqCtx, start, stats.KindRecoverableError, "decode", err, drawn)
		return
	}

	scope := e.scope(drawn, built.obj, respObj, jsonvalue.Null())
	produced := e.dispatchProvides(reqCtx, scope)
	e.dispatchLogs(reqCtx, scope)
	e.notifyOnDemand(produced)

	e.deps.Stats.Emit(stats.Record{
		EndpointID: e.name(),
		Tags:       e.renderTags(reqCtx, scope),
		Time:       start,
		Kind:       stats.KindResponse,
		Status:     resp.StatusCode,
		RTTMicros:  time.Since(start).Microseconds(),
	})
}

// TryResult is one endpoint's outcome from TryOnce, used by the `try`
// subcommand to print a request/response pair for interactive debugging.
type TryResult struct {
	Name     string
	Request  jsonvalue.Value
	Response jsonvalue.Value
}

// TryOnce runs exactly one attempt outside the tick/ParallelCap machinery,
// ignoring load_pattern/peak_load entirely, for `pewpewgo try` (which runs
// every endpoint exactly once). runLogs controls whether the endpoint's
// `logs` queries also fire, matching the `try --loggers` flag.
func (e *Endpoint) TryOnce(ctx context.Context, runLogs bool) (TryResult, error) {
	drawn, tickets, err := e.draw(ctx)
	if err != nil {
		return TryResult{Name: e.name()}, fmt.Errorf("drawing providers: %w", err)
	}
	defer e.returnTickets(ctx, tickets)

	built, err := buildRequest(ctx, e.deps.Runtime, e.cfg, e.clientHeaders, drawn)
	if err != nil {
		return TryResult{Name: e.name()}, fmt.Errorf("building request: %w", err)
	}

	resp, err := e.deps.Client.Do(built.http)
	if err != nil {
		return TryResult{Name: e.name(), Request: built.obj}, fmt.Errorf("sending request: %w", err)
	}

	respObj, err := buildResponseObject(resp, e.caps)
	if err != nil {
		return TryResult{Name: e.name(), Request: built.obj}, fmt.Errorf("decoding response: %w", err)
	}

	scope := e.scope(drawn, built.obj, respObj, jsonvalue.Null())
	produced := e.dispatchProvides(ctx, scope)
	if runLogs {
		e.dispatchLogs(ctx, scope)
	}
	e.notifyOnDemand(produced)

	return TryResult{Name: e.name(), Request: built.obj, Response: respObj}, nil
}

// fail records a recoverable error or timeout: still runs `logs` (an error
// binding is all most error loggers need) and still emits exactly one
// stats.Record.
func (e *Endpoint) fail(ctx context.Context, start time.Time, kind stats.Kind, stage string, cause error, drawn map[string]jsonvalue.Value) {
	level.Debug(e.deps.Logger).Log("msg", "request failed", "endpoint", e.name(), "stage", stage, "err", cause)

	scope := e.scope(drawn, jsonvalue.Null(), jsonvalue.Null(), jsonvalue.String(cause.Error()))
	e.dispatchLogs(ctx, scope)
	e.notifyOnDemand(false)

	e.deps.Stats.Emit(stats.Record{
		EndpointID: e.name(),
		Tags:       e.renderTags(ctx, scope),
		Time:       start,
		Kind:       kind,
		RTTMicros:  time.Since(start).Microseconds(),
		ErrorKind:  stage,
	})
}

// scope assembles the named bindings every declare/provides/logs query and
// tag template evaluates against: the reserved request/response/error
// objects plus every drawn provider value by name.
func (e *Endpoint) scope(drawn map[string]jsonvalue.Value, reqObj, respObj, errVal jsonvalue.Value) map[string]jsonvalue.Value {
	scope := make(map[string]jsonvalue.Value, len(drawn)+4)
	for name, v := range drawn {
		scope[name] = v
	}
	scope["request"] = reqObj
	scope["response"] = respObj
	scope["error"] = errVal
	return scope
}

// draw pulls one value from every provider this endpoint's templates
// reference, pairing each with an auto-return Ticket: it zips the
// provider streams together.
func (e *Endpoint) draw(ctx context.Context) (map[string]jsonvalue.Value, []provider.Ticket, error) {
	drawn := make(map[string]jsonvalue.Value, len(e.providerNames))
	tickets := make([]provider.Ticket, 0, len(e.providerNames))
	for _, name := range e.providerNames {
		p, ok := e.deps.Providers[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown provider %q", name)
		}
		v, err := p.Receiver().Recv(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("drawing from %q: %w", name, err)
		}
		drawn[name] = v
		tickets = append(tickets, provider.NewTicket(p, v))
	}
	return drawn, tickets, nil
}

// returnTickets executes each drawn value's auto_return policy, unless the
// endpoint sets no_auto_returns.
func (e *Endpoint) returnTickets(ctx context.Context, tickets []provider.Ticket) {
	if e.cfg.NoAutoReturns {
		return
	}
	for _, t := range tickets {
		if err := t.Return(ctx); err != nil {
			level.Debug(e.deps.Logger).Log("msg", "auto-return failed", "endpoint", e.name(), "err", err)
		}
	}
}

// dispatchProvides runs every `provides` query and sends its results to the
// matching destination provider per the query's send policy. It reports
// whether at least one value was actually sent, which the on_demand feed
// this endpoint may drive needs to know.
func (e *Endpoint) dispatchProvides(ctx context.Context, scope map[string]jsonvalue.Value) bool {
	produced := false
	for name, pr := range e.cfg.Provides {
		results, err := pr.Query.Run(ctx, e.deps.Runtime, scope)
		if err != nil {
			level.Debug(e.deps.Logger).Log("msg", "provides query failed", "endpoint", e.name(), "provides", name, "err", err)
			continue
		}
		dest, ok := e.deps.Providers[name]
		if !ok {
			continue
		}
		for _, v := range results {
			switch pr.Send {
			case provider.AutoReturnForce:
				dest.Sender().ForceSend(v)
				produced = true
			case provider.AutoReturnIfNotFull:
				if dest.Sender().TrySend(v) == channel.Success {
					produced = true
				}
			default:
				if err := dest.Sender().Send(ctx, v); err != nil {
					level.Debug(e.deps.Logger).Log("msg", "provides send failed", "endpoint", e.name(), "provides", name, "err", err)
					continue
				}
				produced = true
			}
		}
	}
	return produced
}

// notifyOnDemand reports this attempt's production outcome to the on-demand
// adapter this endpoint feeds, if any. Ordinary (non on_demand) endpoints
// have no adapter and this is a no-op.
func (e *Endpoint) notifyOnDemand(produced bool) {
	if e.onDemand == nil {
		return
	}
	e.onDemand.NotifyProduced(produced)
}

// dispatchLogs runs every `logs` query and forwards results to the shared
// LogSink, which owns the actual stdout/stderr/file routing (pkg/logging).
func (e *Endpoint) dispatchLogs(ctx context.Context, scope map[string]jsonvalue.Value) {
	if e.deps.Logs == nil {
		return
	}
	for _, lr := range e.cfg.Logs {
		results, err := lr.Query.Run(ctx, e.deps.Runtime, scope)
		if err != nil {
			level.Debug(e.deps.Logger).Log("msg", "log query failed", "endpoint", e.name(), "log", lr.Name, "err", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		if err := e.deps.Logs.Log(lr.Name, results); err != nil {
			level.Debug(e.deps.Logger).Log("msg", "log sink write failed", "endpoint", e.name(), "log", lr.Name, "err", err)
		}
	}
}

// renderTags evaluates every tag template against scope, forming the
// per-request tag map a stats.Record keys its bucket on.
func (e *Endpoint) renderTags(ctx context.Context, scope map[string]jsonvalue.Value) jsonvalue.Value {
	keys := make([]string, 0, len(e.cfg.Tags))
	vals := make(map[string]jsonvalue.Value, len(e.cfg.Tags))
	for name, t := range e.cfg.Tags {
		v, err := t.Evaluate(ctx, e.deps.Runtime, scope)
		if err != nil {
			continue
		}
		keys = append(keys, name)
		vals[name] = jsonvalue.String(v)
	}
	return jsonvalue.Object(keys, vals)
}

// requiredProviderNames collects every `${p:name}` provider this endpoint's
// url/headers/body/tags reference. Provider identifiers referenced only as
// bare JS variables inside a declare/provides/logs expression (without a
// corresponding ${p:} interpolation anywhere on the endpoint) are outside
// this scan's reach, matching the common pattern of pairing a provider tag
// with a query that reads the same name.
func requiredProviderNames(cfg *config.ResolvedEndpoint) []string {
	set := make(map[string]struct{})
	add := func(t *template.Template) {
		if t == nil {
			return
		}
		for _, name := range t.RequiredProviders() {
			set[name] = struct{}{}
		}
	}
	var addBody func(b *config.ResolvedBody)
	addBody = func(b *config.ResolvedBody) {
		if b == nil {
			return
		}
		add(b.Str)
		add(b.FilePath)
		for _, section := range b.Multipart {
			for _, h := range section.Headers {
				add(h.Template)
			}
			addBody(section.Body)
		}
	}

	add(cfg.URL)
	for _, h := range cfg.Headers {
		add(h.Template)
	}
	addBody(cfg.Body)
	for _, t := range cfg.Tags {
		add(t)
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}
