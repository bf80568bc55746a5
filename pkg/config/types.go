package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Raw is the top-level config document exactly as decoded off YAML:
// templates uncompiled, vars unresolved. The top level holds vars, config
// {client, general}, load_pattern, providers, endpoints[], and loggers.
type Raw struct {
	Vars        yaml.Node              `yaml:"vars"`
	Config      RawConfigSection       `yaml:"config"`
	LoadPattern RawLoadPattern         `yaml:"load_pattern"`
	Providers   map[string]RawProvider `yaml:"providers"`
	Endpoints   []RawEndpoint          `yaml:"endpoints"`
	Loggers     map[string]RawLogger   `yaml:"loggers"`
}

// RawConfigSection is the `config:` block.
type RawConfigSection struct {
	Client  RawClient  `yaml:"client"`
	General RawGeneral `yaml:"general"`
}

// RawClient is `config.client`.
type RawClient struct {
	RequestTimeout VarsOnlyTemplate `yaml:"request_timeout"`
	Headers        Headers          `yaml:"headers"`
	Keepalive      VarsOnlyTemplate `yaml:"keepalive"`
}

func (c *RawClient) UnmarshalYAML(value *yaml.Node) error {
	type alias RawClient
	a := alias{
		RequestTimeout: varsOnlyLiteral("60s"),
		Keepalive:      varsOnlyLiteral("90s"),
	}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*c = RawClient(a)
	return nil
}

// RawGeneral is `config.general`.
type RawGeneral struct {
	AutoBufferStartSize uint64            `yaml:"auto_buffer_start_size"`
	BucketSize          VarsOnlyTemplate  `yaml:"bucket_size"`
	LogProviderStats    bool              `yaml:"log_provider_stats"`
	WatchTransitionTime *VarsOnlyTemplate `yaml:"watch_transition_time"`
}

func (g *RawGeneral) UnmarshalYAML(value *yaml.Node) error {
	type alias RawGeneral
	a := alias{
		AutoBufferStartSize: 5,
		BucketSize:          varsOnlyLiteral("60s"),
		LogProviderStats:    true,
	}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*g = RawGeneral(a)
	return nil
}

// RawLoadPattern is an ordered list of `!linear {from, to, over}` pieces.
type RawLoadPattern []RawLoadPatternPiece

type RawLoadPatternPiece struct {
	From *string // percent string, e.g. "50%"; nil means "previous piece's To, or 0%"
	To   string  // percent string, required
	Over string  // duration string, required
}

func (p *RawLoadPatternPiece) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag != "!linear" && value.Tag != "!!map" {
		return fmt.Errorf("config: load_pattern piece must be tagged !linear, got %q", value.Tag)
	}
	var body struct {
		From *string `yaml:"from"`
		To   string  `yaml:"to"`
		Over string  `yaml:"over"`
	}
	if err := value.Decode(&body); err != nil {
		return err
	}
	p.From, p.To, p.Over = body.From, body.To, body.Over
	return nil
}

// RawEndpoint is one `endpoints[]` entry.
type RawEndpoint struct {
	Method              string                        `yaml:"method"`
	URL                 RegularTemplate               `yaml:"url"`
	Tags                map[string]RegularTemplate    `yaml:"tags"`
	Declare             map[string]RawDeclare         `yaml:"declare"`
	Headers             Headers                       `yaml:"headers"`
	Body                *RawEndpointBody              `yaml:"body"`
	LoadPattern         RawLoadPattern                `yaml:"load_pattern"`
	PeakLoad            *VarsOnlyTemplate             `yaml:"peak_load"`
	Provides            map[string]RawEndpointProvide `yaml:"provides"`
	OnDemand            bool                          `yaml:"on_demand"`
	Logs                []RawLoggerRef                `yaml:"-"` // decoded manually, see UnmarshalYAML
	MaxParallelRequests *int                          `yaml:"max_parallel_requests"`
	NoAutoReturns       bool                          `yaml:"no_auto_returns"`
	RequestTimeout      *VarsOnlyTemplate             `yaml:"request_timeout"`
}

// RawLoggerRef is one entry of an endpoint's ordered `logs` list: a
// reference to a `loggers.<name>` select/for_each/where query. logs is
// an ordered list rather than a map, so order and duplicate names both
// matter.
type RawLoggerRef struct {
	Name  string
	Query RawQuery
}

func (e *RawEndpoint) UnmarshalYAML(value *yaml.Node) error {
	type alias RawEndpoint
	a := alias{Method: "GET"}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*e = RawEndpoint(a)

	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value != "logs" {
			continue
		}
		logsNode := value.Content[i+1]
		if logsNode.Kind != yaml.MappingNode {
			return fmt.Errorf("config: endpoint logs must be a mapping, got yaml kind %v", logsNode.Kind)
		}
		for j := 0; j+1 < len(logsNode.Content); j += 2 {
			var name string
			if err := logsNode.Content[j].Decode(&name); err != nil {
				return err
			}
			var q RawQuery
			if err := logsNode.Content[j+1].Decode(&q); err != nil {
				return fmt.Errorf("config: decoding logs[%q]: %w", name, err)
			}
			e.Logs = append(e.Logs, RawLoggerRef{Name: name, Query: q})
		}
	}
	return nil
}

// RawQuery is a select/for_each/where triple shared by `provides`,
// `logs`, and top-level `loggers` entries.
type RawQuery struct {
	Select  yaml.Node `yaml:"select"`
	ForEach []string  `yaml:"for_each"`
	Where   *string   `yaml:"where"`
}

// RawEndpointProvide pairs a select/for_each/where query with a send
// policy.
type RawEndpointProvide struct {
	RawQuery `yaml:",inline"`
	Send     ProviderSendTag `yaml:"send"`
}

// ProviderSendTag is `!block | !force | !if_not_full`, given as a YAML
// tag on the `send:` scalar node.
type ProviderSendTag int

const (
	ProviderSendBlock ProviderSendTag = iota
	ProviderSendForce
	ProviderSendIfNotFull
)

func (p *ProviderSendTag) UnmarshalYAML(value *yaml.Node) error {
	tag, err := parseProviderSendTag(value.Tag)
	if err != nil {
		return fmt.Errorf("config: send: %w", err)
	}
	*p = tag
	return nil
}

func parseProviderSendTag(tag string) (ProviderSendTag, error) {
	switch tag {
	case "!block", "!!str", "":
		return ProviderSendBlock, nil
	case "!force":
		return ProviderSendForce, nil
	case "!if_not_full":
		return ProviderSendIfNotFull, nil
	default:
		return 0, fmt.Errorf("unknown send policy tag %q (want !block, !force, or !if_not_full)", tag)
	}
}

// RawDeclare is a `declare.<name>` entry: a single ${x:…}-style
// expression template. A `!c` Collects variant (take N values from a
// provider stream and fold them) is not supported (see DESIGN.md);
// every declare entry is treated as the `!x` Expr form.
type RawDeclare struct {
	Expr string
}

func (d *RawDeclare) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!c" {
		return fmt.Errorf("config: declare's !c (collects) form is not supported")
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	d.Expr = s
	return nil
}

// RawEndpointBody is `!str | File (bare string/mapping) | !multipart`.
type RawEndpointBody struct {
	Kind      EndpointBodyKind
	Str       RegularTemplate
	FilePath  RegularTemplate
	Multipart []RawMultipartSection
}

type EndpointBodyKind int

const (
	EndpointBodyStr EndpointBodyKind = iota
	EndpointBodyFile
	EndpointBodyMultipart
)

func (b *RawEndpointBody) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!str":
		b.Kind = EndpointBodyStr
		return b.Str.UnmarshalYAML(value)
	case "!multipart":
		b.Kind = EndpointBodyMultipart
		if value.Kind != yaml.MappingNode {
			return fmt.Errorf("config: body !multipart must be a mapping of section name to section, got yaml kind %v", value.Kind)
		}
		for i := 0; i+1 < len(value.Content); i += 2 {
			var name string
			if err := value.Content[i].Decode(&name); err != nil {
				return err
			}
			var sec RawMultipartSection
			if err := value.Content[i+1].Decode(&sec); err != nil {
				return fmt.Errorf("config: decoding multipart section %q: %w", name, err)
			}
			sec.Name = name
			b.Multipart = append(b.Multipart, sec)
		}
		return nil
	default:
		// a bare scalar/template with no explicit tag is the file path.
		b.Kind = EndpointBodyFile
		return b.FilePath.UnmarshalYAML(value)
	}
}

// RawMultipartSection is one named part of a `!multipart` body.
type RawMultipartSection struct {
	Name    string
	Headers Headers          `yaml:"headers"`
	Body    *RawEndpointBody `yaml:"body"`
}

// RawProvider is `providers.<name>`: `!file | !response | !list |
// !range`.
type RawProvider struct {
	Kind     ProviderKind
	File     RawFileProvider
	Response RawResponseProvider
	List     RawListProvider
	Range    RawRangeProvider
}

type ProviderKind int

const (
	ProviderKindFile ProviderKind = iota
	ProviderKindResponse
	ProviderKindList
	ProviderKindRange
)

func (p *RawProvider) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!file":
		p.Kind = ProviderKindFile
		return value.Decode(&p.File)
	case "!response":
		p.Kind = ProviderKindResponse
		return value.Decode(&p.Response)
	case "!list":
		p.Kind = ProviderKindList
		return value.Decode(&p.List)
	case "!range":
		p.Kind = ProviderKindRange
		return value.Decode(&p.Range)
	default:
		return fmt.Errorf("config: provider %q must be tagged one of !file, !response, !list, !range", value.Tag)
	}
}

// BufferLimitRaw is "auto" or an explicit integer.
type BufferLimitRaw struct {
	Auto  bool
	Limit uint64
}

func (b *BufferLimitRaw) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 {
		b.Auto = true
		return nil
	}
	var s string
	if err := value.Decode(&s); err == nil {
		if s != "auto" {
			return fmt.Errorf("config: buffer limit string must be \"auto\", got %q", s)
		}
		b.Auto = true
		return nil
	}
	var n uint64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: buffer must be \"auto\" or a non-negative integer: %w", err)
	}
	b.Limit = n
	return nil
}

// RawFileProvider is `!file`.
type RawFileProvider struct {
	Path       VarsOnlyTemplate `yaml:"path"`
	Repeat     bool             `yaml:"repeat"`
	Unique     bool             `yaml:"unique"`
	AutoReturn *ProviderSendTag `yaml:"auto_return"`
	Buffer     BufferLimitRaw   `yaml:"buffer"`
	Format     string           `yaml:"format"` // "line" (default) | "json" | "csv"
	Random     bool             `yaml:"random"`
	CSV        RawCSVParams     `yaml:"csv"`
}

func (f *RawFileProvider) UnmarshalYAML(value *yaml.Node) error {
	type alias RawFileProvider
	a := alias{Buffer: BufferLimitRaw{Auto: true}, Format: "line"}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*f = RawFileProvider(a)
	return nil
}

// RawCSVParams holds the `csv` block of a `!file` provider in "csv"
// format. Only Headers and Comment affect parsing; Delimiter, DoubleQuote,
// Escape, Terminator and Quote are decoded but not applied, and records
// are read with encoding/csv's defaults (comma delimiter, double-quote
// quoting).
type RawCSVParams struct {
	Comment    string `yaml:"comment"`
	Delimiter  string `yaml:"delimiter"`
	DoubleQuote *bool `yaml:"double_quote"`
	Escape     string `yaml:"escape"`
	Headers    bool   `yaml:"headers"`
	Terminator string `yaml:"terminator"`
	Quote      string `yaml:"quote"`
}

// RawResponseProvider is `!response`.
type RawResponseProvider struct {
	AutoReturn *ProviderSendTag `yaml:"auto_return"`
	Buffer     BufferLimitRaw   `yaml:"buffer"`
	Unique     bool             `yaml:"unique"`
}

func (r *RawResponseProvider) UnmarshalYAML(value *yaml.Node) error {
	type alias RawResponseProvider
	a := alias{Buffer: BufferLimitRaw{Auto: true}}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*r = RawResponseProvider(a)
	return nil
}

// RawListProvider is `!list`: either a bare sequence of values or the
// explicit {values, random, repeat, unique} form.
type RawListProvider struct {
	Values []yaml.Node `yaml:"values"`
	Random bool        `yaml:"random"`
	Repeat bool        `yaml:"repeat"`
	Unique bool        `yaml:"unique"`
}

func (l *RawListProvider) UnmarshalYAML(value *yaml.Node) error {
	*l = RawListProvider{Repeat: true}
	if value.Kind == yaml.SequenceNode {
		l.Values = value.Content
		return nil
	}
	type alias RawListProvider
	a := alias{Repeat: true}
	if err := value.Decode(&a); err != nil {
		return err
	}
	*l = RawListProvider(a)
	return nil
}

// RawRangeProvider is `!range`.
type RawRangeProvider struct {
	Start  int64 `yaml:"start"`
	End    int64 `yaml:"end"`
	Step   int64 `yaml:"step"`
	Repeat bool  `yaml:"repeat"`
	Unique bool  `yaml:"unique"`
}

func (r *RawRangeProvider) UnmarshalYAML(value *yaml.Node) error {
	type alias RawRangeProvider
	a := alias{End: 1<<63 - 1, Step: 1}
	if err := value.Decode(&a); err != nil {
		return err
	}
	if a.Step < 1 {
		return fmt.Errorf("config: range provider step must be >= 1")
	}
	*r = RawRangeProvider(a)
	return nil
}

// RawLogger is `loggers.<name>`.
type RawLogger struct {
	RawQuery `yaml:",inline"`
	To       RawLogTo `yaml:"to"`
	Pretty   bool     `yaml:"pretty"`
	Limit    *int     `yaml:"limit"`
	Kill     bool     `yaml:"kill"`
}

// RawLogTo is `!stdout | !stderr | !file <template>`.
type RawLogTo struct {
	Kind EndpointLogToKind
	File RegularTemplate
}

type EndpointLogToKind int

const (
	LogToStdout EndpointLogToKind = iota
	LogToStderr
	LogToFile
)

func (l *RawLogTo) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!stdout":
		l.Kind = LogToStdout
		return nil
	case "!stderr":
		l.Kind = LogToStderr
		return nil
	case "!file":
		l.Kind = LogToFile
		return l.File.UnmarshalYAML(value)
	default:
		return fmt.Errorf("config: loggers.to must be tagged !stdout, !stderr, or !file, got %q", value.Tag)
	}
}
