package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/query"
	"github.com/grafana/pewpewgo/pkg/scheduler"
	"github.com/grafana/pewpewgo/pkg/template"
)

// Resolved is the fully post-processed config: every VarsOnly field baked
// to a concrete Go value, every Regular field compiled to a *template.
// Template (literal or still NeedsProviders), and every select/for_each/
// where triple compiled to a *query.Query (
// "Resolved" stage).
type Resolved struct {
	Client      ResolvedClient
	General     ResolvedGeneral
	LoadPattern []scheduler.LinearPiece
	Providers   map[string]ResolvedProvider
	Endpoints   []ResolvedEndpoint
	Loggers     map[string]ResolvedLogger
	Vars        map[string]jsonvalue.Value
}

type ResolvedClient struct {
	RequestTimeout time.Duration
	Headers        []ResolvedHeader
	Keepalive      time.Duration
}

type ResolvedGeneral struct {
	AutoBufferStartSize uint64
	BucketSize          time.Duration
	LogProviderStats    bool
	WatchTransitionTime *time.Duration
}

// ResolvedHeader is a compiled (name, value-template) pair.
type ResolvedHeader struct {
	Name     string
	Template *template.Template
}

// ResolvedProvider carries exactly one of the four provider.*Config shapes,
// ready to hand to the matching pkg/provider constructor.
type ResolvedProvider struct {
	Kind     ProviderKind
	FileLine provider.FileLineConfig
	FileJSON provider.FileJSONConfig
	FileCSV  provider.FileCSVConfig
	FileFmt  string // "line" | "json" | "csv", selects which FileXxx field above applies
	Response provider.ResponseConfig
	List     provider.ListConfig
	Range    provider.RangeConfig
}

// Build constructs the live provider.Provider for this config entry.
func (p ResolvedProvider) Build(name string, errCh chan<- error) *provider.Provider {
	switch p.Kind {
	case ProviderKindFile:
		switch p.FileFmt {
		case "json":
			return provider.NewFileJSON(name, p.FileJSON, errCh)
		case "csv":
			return provider.NewFileCSV(name, p.FileCSV, errCh)
		default:
			return provider.NewFileLine(name, p.FileLine, errCh)
		}
	case ProviderKindResponse:
		return provider.NewResponse(name, p.Response)
	case ProviderKindList:
		return provider.NewList(name, p.List)
	case ProviderKindRange:
		return provider.NewRange(name, p.Range)
	default:
		panic("config: unknown provider kind")
	}
}

type ResolvedEndpoint struct {
	Method              string
	URL                 *template.Template
	Tags                map[string]*template.Template
	Declare             map[string]*query.Query
	Headers             []ResolvedHeader
	Body                *ResolvedBody
	LoadPattern          []scheduler.LinearPiece
	PeakLoad            *scheduler.HitsPer
	Provides            map[string]ResolvedProvide
	OnDemand            bool
	Logs                []ResolvedLogRef
	MaxParallelRequests *int
	NoAutoReturns       bool
	RequestTimeout      *time.Duration
}

type ResolvedProvide struct {
	Query *query.Query
	Send  provider.AutoReturnPolicy
}

type ResolvedLogRef struct {
	Name  string
	Query *query.Query
}

type ResolvedBody struct {
	Kind      EndpointBodyKind
	Str       *template.Template
	FilePath  *template.Template
	Multipart []ResolvedMultipartSection
}

type ResolvedMultipartSection struct {
	Name    string
	Headers []ResolvedHeader
	Body    *ResolvedBody
}

type ResolvedLogger struct {
	Query  *query.Query
	To     ResolvedLogTo
	Pretty bool
	Limit  *int
	Kill   bool
}

type ResolvedLogTo struct {
	Kind EndpointLogToKind
	File *template.Template
}

// Resolve runs the full PreVars→Resolved pipeline over a decoded Raw tree.
// env supplies ${e:…} lookups for the vars section; varsRuntime evaluates
// any ${x:…} expression embedded in a vars string (see resolveVarsString).
func Resolve(raw *Raw, env EnvLookup, varsRuntime *template.Runtime) (*Resolved, error) {
	vars, err := resolveVarsNode(raw.Vars, env, varsRuntime)
	if err != nil {
		return nil, fmt.Errorf("config: resolving vars: %w", err)
	}
	lookup := VarLookup(vars)

	client, err := resolveClient(raw.Config.Client, lookup)
	if err != nil {
		return nil, fmt.Errorf("config: resolving config.client: %w", err)
	}
	general, err := resolveGeneral(raw.Config.General, lookup)
	if err != nil {
		return nil, fmt.Errorf("config: resolving config.general: %w", err)
	}
	loadPattern, err := resolveLoadPattern(raw.LoadPattern)
	if err != nil {
		return nil, fmt.Errorf("config: resolving load_pattern: %w", err)
	}

	providers := make(map[string]ResolvedProvider, len(raw.Providers))
	for name, p := range raw.Providers {
		if ReservedName(name) {
			return nil, fmt.Errorf("config: provider %q uses a reserved name", name)
		}
		rp, err := resolveProvider(p, lookup)
		if err != nil {
			return nil, fmt.Errorf("config: resolving provider %q: %w", name, err)
		}
		providers[name] = rp
	}

	endpoints := make([]ResolvedEndpoint, len(raw.Endpoints))
	for i, e := range raw.Endpoints {
		re, err := resolveEndpoint(e, lookup, i)
		if err != nil {
			return nil, fmt.Errorf("config: resolving endpoints[%d]: %w", i, err)
		}
		re.insertLoadPattern(loadPattern)
		re.insertSpecialTags(i)
		endpoints[i] = re
	}

	loggers := make(map[string]ResolvedLogger, len(raw.Loggers))
	for name, l := range raw.Loggers {
		rl, err := resolveLogger(l, lookup)
		if err != nil {
			return nil, fmt.Errorf("config: resolving logger %q: %w", name, err)
		}
		loggers[name] = rl
	}

	return &Resolved{
		Client:      client,
		General:     general,
		LoadPattern: loadPattern,
		Providers:   providers,
		Endpoints:   endpoints,
		Loggers:     loggers,
		Vars:        vars,
	}, nil
}

// ReservedName reports whether name may not be used for a user-defined
// provider.
func ReservedName(name string) bool { return provider.ReservedNames[name] }

// resolveDuration compiles and fully resolves a VarsOnly duration field:
// VarsOnly templates never reference providers, so ResolveVars always
// reduces them to a literal.
func resolveDuration(t VarsOnlyTemplate, lookup template.VarLookup) (time.Duration, error) {
	lit, err := resolveVarsOnlyLiteral(t, lookup)
	if err != nil {
		return 0, err
	}
	return ParseDuration(lit)
}

func resolveVarsOnlyLiteral(t VarsOnlyTemplate, lookup template.VarLookup) (string, error) {
	tpl, err := t.Compile()
	if err != nil {
		return "", err
	}
	if err := tpl.ResolveVars(lookup); err != nil {
		return "", err
	}
	lit, ok := tpl.IsLiteral()
	if !ok {
		return "", fmt.Errorf("internal error: a VarsOnly template failed to reduce to a literal")
	}
	return lit, nil
}

func resolveClient(c RawClient, lookup template.VarLookup) (ResolvedClient, error) {
	timeout, err := resolveDuration(c.RequestTimeout, lookup)
	if err != nil {
		return ResolvedClient{}, fmt.Errorf("request_timeout: %w", err)
	}
	keepalive, err := resolveDuration(c.Keepalive, lookup)
	if err != nil {
		return ResolvedClient{}, fmt.Errorf("keepalive: %w", err)
	}
	headers, err := resolveHeaders(c.Headers, lookup)
	if err != nil {
		return ResolvedClient{}, err
	}
	return ResolvedClient{RequestTimeout: timeout, Headers: headers, Keepalive: keepalive}, nil
}

func resolveGeneral(g RawGeneral, lookup template.VarLookup) (ResolvedGeneral, error) {
	bucketSize, err := resolveDuration(g.BucketSize, lookup)
	if err != nil {
		return ResolvedGeneral{}, fmt.Errorf("bucket_size: %w", err)
	}
	out := ResolvedGeneral{
		AutoBufferStartSize: g.AutoBufferStartSize,
		BucketSize:          bucketSize,
		LogProviderStats:    g.LogProviderStats,
	}
	if g.WatchTransitionTime != nil {
		d, err := resolveDuration(*g.WatchTransitionTime, lookup)
		if err != nil {
			return ResolvedGeneral{}, fmt.Errorf("watch_transition_time: %w", err)
		}
		out.WatchTransitionTime = &d
	}
	return out, nil
}

func resolveHeaders(raw Headers, lookup template.VarLookup) ([]ResolvedHeader, error) {
	out := make([]ResolvedHeader, len(raw))
	for i, h := range raw {
		tpl, err := h.Value.Compile()
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", h.Name, err)
		}
		if err := tpl.ResolveVars(lookup); err != nil {
			return nil, fmt.Errorf("header %q: %w", h.Name, err)
		}
		out[i] = ResolvedHeader{Name: h.Name, Template: tpl}
	}
	return out, nil
}

func resolveRegular(t RegularTemplate, lookup template.VarLookup) (*template.Template, error) {
	tpl, err := t.Compile()
	if err != nil {
		return nil, err
	}
	if err := tpl.ResolveVars(lookup); err != nil {
		return nil, err
	}
	return tpl, nil
}

// resolveLoadPattern walks an ordered piece list, defaulting each piece's
// `from` to the previous piece's `to` (or 0%)
// LoadPattern rule.
func resolveLoadPattern(pieces RawLoadPattern) ([]scheduler.LinearPiece, error) {
	if len(pieces) == 0 {
		return nil, nil
	}
	out := make([]scheduler.LinearPiece, len(pieces))
	prevTo := 0.0
	for i, p := range pieces {
		from := prevTo
		if p.From != nil {
			f, err := ParsePercent(*p.From)
			if err != nil {
				return nil, fmt.Errorf("piece %d: from: %w", i, err)
			}
			from = f
		}
		to, err := ParsePercent(p.To)
		if err != nil {
			return nil, fmt.Errorf("piece %d: to: %w", i, err)
		}
		dur, err := ParseDuration(p.Over)
		if err != nil {
			return nil, fmt.Errorf("piece %d: over: %w", i, err)
		}
		out[i] = scheduler.LinearPiece{StartPercent: from, EndPercent: to, Duration: dur}
		prevTo = to
	}
	return out, nil
}

func resolveProvider(p RawProvider, lookup template.VarLookup) (ResolvedProvider, error) {
	switch p.Kind {
	case ProviderKindFile:
		return resolveFileProvider(p.File, lookup)
	case ProviderKindResponse:
		return ResolvedProvider{
			Kind: ProviderKindResponse,
			Response: provider.ResponseConfig{
				BufferSize: resolveBufferLimit(p.Response.Buffer),
				AutoReturn: resolveAutoReturn(p.Response.AutoReturn),
			},
		}, nil
	case ProviderKindList:
		values := make([]jsonvalue.Value, len(p.List.Values))
		for i, node := range p.List.Values {
			v, err := nodeToJSONValue(node)
			if err != nil {
				return ResolvedProvider{}, fmt.Errorf("values[%d]: %w", i, err)
			}
			values[i] = v
		}
		return ResolvedProvider{
			Kind: ProviderKindList,
			List: provider.ListConfig{
				Values: values,
				Repeat: p.List.Repeat,
				Random: p.List.Random,
				Unique: p.List.Unique,
			},
		}, nil
	case ProviderKindRange:
		return ResolvedProvider{
			Kind: ProviderKindRange,
			Range: provider.RangeConfig{
				Start:  p.Range.Start,
				End:    p.Range.End,
				Step:   p.Range.Step,
				Repeat: p.Range.Repeat,
				Unique: p.Range.Unique,
			},
		}, nil
	default:
		return ResolvedProvider{}, fmt.Errorf("unknown provider kind")
	}
}

func resolveFileProvider(f RawFileProvider, lookup template.VarLookup) (ResolvedProvider, error) {
	path, err := resolveVarsOnlyLiteral(f.Path, lookup)
	if err != nil {
		return ResolvedProvider{}, fmt.Errorf("path: %w", err)
	}
	buffer := resolveBufferLimit(f.Buffer)
	autoReturn := resolveAutoReturn(f.AutoReturn)
	format := strings.ToLower(f.Format)
	switch format {
	case "", "line":
		return ResolvedProvider{
			Kind: ProviderKindFile, FileFmt: "line",
			FileLine: provider.FileLineConfig{
				Path: path, Repeat: f.Repeat, Random: f.Random, Unique: f.Unique,
				BufferSize: buffer, AutoReturn: autoReturn,
			},
		}, nil
	case "json":
		return ResolvedProvider{
			Kind: ProviderKindFile, FileFmt: "json",
			FileJSON: provider.FileJSONConfig{
				Path: path, Repeat: f.Repeat, Random: f.Random, Unique: f.Unique,
				BufferSize: buffer, AutoReturn: autoReturn,
			},
		}, nil
	case "csv":
		var comment rune
		if f.CSV.Comment != "" {
			comment = []rune(f.CSV.Comment)[0]
		}
		return ResolvedProvider{
			Kind: ProviderKindFile, FileFmt: "csv",
			FileCSV: provider.FileCSVConfig{
				Path: path, Headers: f.CSV.Headers, Comment: comment,
				Repeat: f.Repeat, Random: f.Random, Unique: f.Unique,
				BufferSize: buffer, AutoReturn: autoReturn,
			},
		}, nil
	default:
		return ResolvedProvider{}, fmt.Errorf("unknown file format %q (want line, json, or csv)", f.Format)
	}
}

func resolveBufferLimit(b BufferLimitRaw) int {
	if b.Auto {
		return 0
	}
	return int(b.Limit)
}

func resolveAutoReturn(tag *ProviderSendTag) provider.AutoReturnPolicy {
	if tag == nil {
		return provider.AutoReturnNone
	}
	switch *tag {
	case ProviderSendForce:
		return provider.AutoReturnForce
	case ProviderSendIfNotFull:
		return provider.AutoReturnIfNotFull
	default:
		return provider.AutoReturnBlock
	}
}

func resolveEndpoint(e RawEndpoint, lookup template.VarLookup, index int) (ResolvedEndpoint, error) {
	method := strings.ToUpper(e.Method)
	if method == "" {
		method = "GET"
	}

	url, err := resolveRegular(e.URL, lookup)
	if err != nil {
		return ResolvedEndpoint{}, fmt.Errorf("url: %w", err)
	}

	tags := make(map[string]*template.Template, len(e.Tags))
	for name, t := range e.Tags {
		tt, err := resolveRegular(t, lookup)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("tags[%q]: %w", name, err)
		}
		tags[name] = tt
	}

	declare := make(map[string]*query.Query, len(e.Declare))
	for name, d := range e.Declare {
		q, err := query.Compile(fmt.Sprintf("endpoints[%d].declare[%s]", index, name), query.Simple(d.Expr, nil, nil))
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("declare[%q]: %w", name, err)
		}
		declare[name] = q
	}

	headers, err := resolveHeaders(e.Headers, lookup)
	if err != nil {
		return ResolvedEndpoint{}, err
	}

	var body *ResolvedBody
	if e.Body != nil {
		body, err = resolveBody(*e.Body, lookup)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("body: %w", err)
		}
	}

	loadPattern, err := resolveLoadPattern(e.LoadPattern)
	if err != nil {
		return ResolvedEndpoint{}, fmt.Errorf("load_pattern: %w", err)
	}

	var peakLoad *scheduler.HitsPer
	if e.PeakLoad != nil {
		lit, err := resolveVarsOnlyLiteral(*e.PeakLoad, lookup)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("peak_load: %w", err)
		}
		n, kind, err := ParseHitsPer(lit)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("peak_load: %w", err)
		}
		hp := scheduler.HitsPer{Value: n, Kind: schedulerKind(kind)}
		peakLoad = &hp
	}

	provides := make(map[string]ResolvedProvide, len(e.Provides))
	for name, p := range e.Provides {
		cfg, err := buildQueryConfig(p.RawQuery)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("provides[%q]: %w", name, err)
		}
		q, err := query.Compile(fmt.Sprintf("endpoints[%d].provides[%s]", index, name), cfg)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("provides[%q]: %w", name, err)
		}
		provides[name] = ResolvedProvide{Query: q, Send: sendPolicy(p.Send)}
	}

	logs := make([]ResolvedLogRef, len(e.Logs))
	for i, l := range e.Logs {
		cfg, err := buildQueryConfig(l.Query)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("logs[%d]: %w", i, err)
		}
		q, err := query.Compile(fmt.Sprintf("endpoints[%d].logs[%d]", index, i), cfg)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("logs[%d]: %w", i, err)
		}
		logs[i] = ResolvedLogRef{Name: l.Name, Query: q}
	}

	var requestTimeout *time.Duration
	if e.RequestTimeout != nil {
		d, err := resolveDuration(*e.RequestTimeout, lookup)
		if err != nil {
			return ResolvedEndpoint{}, fmt.Errorf("request_timeout: %w", err)
		}
		requestTimeout = &d
	}

	return ResolvedEndpoint{
		Method:              method,
		URL:                 url,
		Tags:                tags,
		Declare:             declare,
		Headers:             headers,
		Body:                body,
		LoadPattern:         loadPattern,
		PeakLoad:            peakLoad,
		Provides:            provides,
		OnDemand:            e.OnDemand,
		Logs:                logs,
		MaxParallelRequests: e.MaxParallelRequests,
		NoAutoReturns:       e.NoAutoReturns,
		RequestTimeout:      requestTimeout,
	}, nil
}

func schedulerKind(k HitsPerKind) scheduler.HitsPerKind {
	if k == HitsPerSecond {
		return scheduler.HitsPerSecond
	}
	return scheduler.HitsPerMinute
}

func sendPolicy(tag ProviderSendTag) provider.AutoReturnPolicy {
	switch tag {
	case ProviderSendForce:
		return provider.AutoReturnForce
	case ProviderSendIfNotFull:
		return provider.AutoReturnIfNotFull
	default:
		return provider.AutoReturnBlock
	}
}

// insertLoadPattern fills in an endpoint's load pattern from the global
// default when the endpoint doesn't define its own.
func (e *ResolvedEndpoint) insertLoadPattern(global []scheduler.LinearPiece) {
	if e.LoadPattern == nil {
		e.LoadPattern = global
	}
}

// insertSpecialTags adds the reserved `_id`/`method`/`url` tags. The `url`
// tag is only synthesized when the user didn't supply one explicitly; see
// urlStarTemplate for its value.
func (e *ResolvedEndpoint) insertSpecialTags(id int) {
	if e.Tags == nil {
		e.Tags = map[string]*template.Template{}
	}
	idTpl, _ := template.Compile(fmt.Sprintf("%d", id), template.Regular)
	_ = idTpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil })
	e.Tags["_id"] = idTpl

	methodTpl, _ := template.Compile(e.Method, template.Regular)
	_ = methodTpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil })
	e.Tags["method"] = methodTpl

	if _, ok := e.Tags["url"]; !ok {
		e.Tags["url"] = urlStarTemplate(e.URL)
	}
}

// urlStarTemplate returns the URL itself when it resolved to a literal;
// for any URL that still needs providers the whole tag is the literal "*"
// (its literal parts are not kept), so the `url` tag stays stable across
// different provider draws.
func urlStarTemplate(url *template.Template) *template.Template {
	lit, ok := url.IsLiteral()
	if ok {
		tpl, _ := template.Compile(lit, template.Regular)
		_ = tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil })
		return tpl
	}
	tpl, _ := template.Compile("*", template.Regular)
	_ = tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil })
	return tpl
}

func resolveBody(b RawEndpointBody, lookup template.VarLookup) (*ResolvedBody, error) {
	switch b.Kind {
	case EndpointBodyStr:
		tpl, err := resolveRegular(b.Str, lookup)
		if err != nil {
			return nil, err
		}
		return &ResolvedBody{Kind: EndpointBodyStr, Str: tpl}, nil
	case EndpointBodyFile:
		tpl, err := resolveRegular(b.FilePath, lookup)
		if err != nil {
			return nil, err
		}
		return &ResolvedBody{Kind: EndpointBodyFile, FilePath: tpl}, nil
	case EndpointBodyMultipart:
		sections := make([]ResolvedMultipartSection, len(b.Multipart))
		for i, s := range b.Multipart {
			headers, err := resolveHeaders(s.Headers, lookup)
			if err != nil {
				return nil, fmt.Errorf("multipart[%d]: %w", i, err)
			}
			var section *ResolvedBody
			if s.Body != nil {
				section, err = resolveBody(*s.Body, lookup)
				if err != nil {
					return nil, fmt.Errorf("multipart[%d]: %w", i, err)
				}
			}
			sections[i] = ResolvedMultipartSection{Name: s.Name, Headers: headers, Body: section}
		}
		return &ResolvedBody{Kind: EndpointBodyMultipart, Multipart: sections}, nil
	default:
		return nil, fmt.Errorf("unknown body kind")
	}
}

func resolveLogger(l RawLogger, lookup template.VarLookup) (ResolvedLogger, error) {
	cfg, err := buildQueryConfig(l.RawQuery)
	if err != nil {
		return ResolvedLogger{}, err
	}
	q, err := query.Compile("logger", cfg)
	if err != nil {
		return ResolvedLogger{}, err
	}
	to := ResolvedLogTo{Kind: l.To.Kind}
	if l.To.Kind == LogToFile {
		tpl, err := resolveRegular(l.To.File, lookup)
		if err != nil {
			return ResolvedLogger{}, fmt.Errorf("to: %w", err)
		}
		to.File = tpl
	}
	return ResolvedLogger{Query: q, To: to, Pretty: l.Pretty, Limit: l.Limit, Kill: l.Kill}, nil
}

func buildQueryConfig(q RawQuery) (query.Config, error) {
	sel, err := nodeToJSONValue(q.Select)
	if err != nil {
		return query.Config{}, fmt.Errorf("select: %w", err)
	}
	return query.Config{Select: sel, ForEach: q.ForEach, Where: q.Where}, nil
}

func nodeToJSONValue(node yaml.Node) (jsonvalue.Value, error) {
	if node.Kind == 0 {
		return jsonvalue.Null(), nil
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return jsonvalue.Value{}, err
	}
	return jsonvalue.FromGo(raw)
}
