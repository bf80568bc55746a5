package config

import (
	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/template"
)

// templateField is the common shape behind RegularTemplate/VarsOnlyTemplate:
// the raw scalar string plus the TemplateKind it must compile against,
// tracked as a runtime field (see pkg/template.Template's own doc comment
// for why Go tracks this at runtime instead of in the type system).
type templateField struct {
	raw  string
	kind template.TemplateKind
}

func (t *templateField) decode(value *yaml.Node, kind template.TemplateKind) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	t.raw = s
	t.kind = kind
	return nil
}

// Compile parses this field's raw text under its fixed TemplateKind,
// the PreVars stage of the two-stage compile pipeline.
func (t templateField) Compile() (*template.Template, error) {
	return template.Compile(t.raw, t.kind)
}

func (t templateField) Raw() string { return t.raw }

// RegularTemplate is a config field that may use ${v:…}, ${p:…}, and
// ${x:…} — url, headers, body, tags ("Regular" kind).
type RegularTemplate struct{ templateField }

func (t *RegularTemplate) UnmarshalYAML(value *yaml.Node) error {
	return t.decode(value, template.Regular)
}

func regularLiteral(raw string) RegularTemplate {
	return RegularTemplate{templateField{raw: raw, kind: template.Regular}}
}

// VarsOnlyTemplate is a config field that may use ${v:…}/${x:…} over vars
// but never ${p:…} — durations, keepalive, bucket_size, peak_load, and
// similar fields that must be known before any provider exists.
type VarsOnlyTemplate struct{ templateField }

func (t *VarsOnlyTemplate) UnmarshalYAML(value *yaml.Node) error {
	return t.decode(value, template.VarsOnly)
}

func varsOnlyLiteral(raw string) VarsOnlyTemplate {
	return VarsOnlyTemplate{templateField{raw: raw, kind: template.VarsOnly}}
}
