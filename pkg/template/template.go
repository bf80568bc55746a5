package template

import (
	"context"
	"fmt"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// Template is the staged template type: the stages are tracked as plain
// runtime fields. Compile first parses+type-checks the tag grammar (the
// PreVars stage), then ResolveVars substitutes ${v:…} lookups and either
// reduces the whole thing to a literal string or leaves a compiled
// NeedsProviders form behind.
type Template struct {
	kind     TemplateKind
	segments []Segment

	// set once ResolveVars has run
	resolved bool
	literal  string
	isLit    bool
	compiled []compiledSegment
}

// compiledSegment is the post-var-resolution form: either literal text, a
// direct provider reference, or a compiled (but not yet evaluated) JS
// expression string ready to hand to a Runtime.
type compiledSegment struct {
	isLiteral bool
	isProv    bool
	literal   string
	provName  string
	exprJS    string
}

// Compile parses a raw template string under the given kind, corresponding
// to the PreVars stage.
func Compile(raw string, kind TemplateKind) (*Template, error) {
	segs, err := Parse(raw, kind)
	if err != nil {
		return nil, err
	}
	return &Template{kind: kind, segments: segs}, nil
}

// VarLookup resolves a `${v:path}` dotted/bracketed path against the
// resolved `vars` tree.
type VarLookup func(path string) (jsonvalue.Value, error)

// EnvLookup resolves a `${e:NAME}` environment variable name, used only by
// EnvsOnly templates (the `vars:` section itself, which is populated from
// the environment before anything else in a config can be resolved).
type EnvLookup func(name string) (string, error)

// ResolveEnv substitutes every ${e:…} segment in an EnvsOnly template,
// reducing it straight to a literal string (EnvsOnly templates never
// contain ${p:…} and so can never need a Runtime to finish evaluating).
// Calling this on a non-EnvsOnly template is a programming error.
func (t *Template) ResolveEnv(lookup EnvLookup) (string, error) {
	if t.kind != EnvsOnly {
		return "", fmt.Errorf("template: ResolveEnv called on a non-EnvsOnly template")
	}
	var sb []byte
	for _, s := range t.segments {
		switch s.Kind {
		case SegRaw:
			sb = append(sb, s.Text...)
		case SegEnv:
			v, err := lookup(s.Text)
			if err != nil {
				return "", fmt.Errorf("template: resolving env %q: %w", s.Text, err)
			}
			sb = append(sb, v...)
		default:
			return "", fmt.Errorf("template: unexpected segment kind %v in EnvsOnly template", s.Kind)
		}
	}
	result := string(sb)
	t.resolved = true
	t.isLit = true
	t.literal = result
	return result, nil
}

// ResolveVars substitutes every ${v:…} segment via lookup, producing the
// Resolved stage: a Literal when only plain text remains, otherwise a
// NeedsProviders compiled form. Any ${x:…} segment keeps the compiled
// form, even one that references no provider; such an expression is
// evaluated on every Evaluate call rather than once here.
func (t *Template) ResolveVars(lookup VarLookup) error {
	resolved, err := resolveVarSegments(t.segments, lookup)
	if err != nil {
		return err
	}
	if lit, ok := IsLiteral(resolved); ok {
		t.resolved = true
		t.isLit = true
		t.literal = lit
		return nil
	}

	compiled, err := compileSegments(resolved)
	if err != nil {
		return err
	}
	t.resolved = true
	t.isLit = false
	t.compiled = compiled
	return nil
}

func resolveVarSegments(segs []Segment, lookup VarLookup) ([]Segment, error) {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		switch s.Kind {
		case SegVar:
			v, err := lookup(s.Text)
			if err != nil {
				return nil, fmt.Errorf("template: resolving var %q: %w", s.Text, err)
			}
			out = append(out, Segment{Kind: SegRaw, Text: v.AsString()})
		case SegExpr:
			inner, err := resolveVarSegments(s.Expr, lookup)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{Kind: SegExpr, Expr: inner})
		default:
			out = append(out, s)
		}
	}
	return out, nil
}

// RequiredProviders reports which ${p:…} names a resolved (or unresolved)
// template depends on.
func (t *Template) RequiredProviders() []string {
	return RequiredProviders(t.segments)
}

// IsLiteral reports whether ResolveVars reduced this template to a plain
// string with no further evaluation needed.
func (t *Template) IsLiteral() (string, bool) {
	return t.literal, t.resolved && t.isLit
}

// compileSegments turns a var-resolved segment sequence into the
// NeedsProviders form: each raw segment stays its own literal piece,
// `${p:…}` becomes a direct-value marker, and `${x:…}` becomes a JS
// expression string (its raw text taken verbatim as JS source and each
// nested `${p:name}` rendered as `____provider_values["name"]`).
func compileSegments(segs []Segment) ([]compiledSegment, error) {
	var out []compiledSegment
	for _, s := range segs {
		switch s.Kind {
		case SegRaw:
			out = append(out, compiledSegment{isLiteral: true, literal: s.Text})
		case SegProv:
			out = append(out, compiledSegment{isProv: true, provName: s.Text})
		case SegExpr:
			js, err := exprToJS(s.Expr)
			if err != nil {
				return nil, err
			}
			out = append(out, compiledSegment{exprJS: js})
		default:
			return nil, fmt.Errorf("template: unexpected segment kind %v after var resolution", s.Kind)
		}
	}
	return out, nil
}

// exprToJS renders a ${x:…} block's inner segments into a JS expression:
// literal text becomes raw program text and ${p:name} becomes
// ____provider_values["name"]. The expression is a single JS snippet, so
// raw text segments are simply concatenated as JS source verbatim — they
// ARE the JS source, not string literals.
func exprToJS(segs []Segment) (string, error) {
	var sb []byte
	for _, s := range segs {
		switch s.Kind {
		case SegRaw:
			sb = append(sb, s.Text...)
		case SegProv:
			sb = append(sb, fmt.Sprintf("____provider_values[%q]", s.Text)...)
		default:
			return "", fmt.Errorf("template: ${x:…} may only contain literal text and ${p:…}, got kind %v", s.Kind)
		}
	}
	return string(sb), nil
}

// Evaluate produces this request's value: for a Literal template, returns
// the baked string immediately; for NeedsProviders, zips in the given
// provider values and runs the compiled segments through rt, concatenating
// the results into one string.
func (t *Template) Evaluate(ctx context.Context, rt *Runtime, providerValues map[string]jsonvalue.Value) (string, error) {
	if t.isLit {
		return t.literal, nil
	}
	if !t.resolved {
		return "", fmt.Errorf("template: Evaluate called before ResolveVars")
	}

	var out []byte
	for _, cs := range t.compiled {
		switch {
		case cs.isLiteral:
			out = append(out, cs.literal...)
		case cs.isProv:
			v, ok := providerValues[cs.provName]
			if !ok {
				return "", fmt.Errorf("template: missing provider value for %q", cs.provName)
			}
			out = append(out, v.AsString()...)
		default:
			v, err := rt.Eval(ctx, cs.exprJS, providerValues)
			if err != nil {
				return "", err
			}
			out = append(out, v.AsString()...)
		}
	}
	return string(out), nil
}
