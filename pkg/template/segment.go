package template

import (
	"fmt"
	"strings"
)

// SegmentKind identifies what a typed Segment represents.
type SegmentKind int

const (
	SegRaw SegmentKind = iota
	SegEnv
	SegVar
	SegProv
	SegExpr
)

// Segment is the typed, tag-checked counterpart of rawSegment: Env/Var/Prov
// segments carry a single primitive name (no nested templates allowed
// inside them), while Expr segments carry an arbitrary nested sequence
// including further Env/Var/Prov (but never another nested Expr —
// "${x:…} templates cannot appear inside of ${x:…} templates").
type Segment struct {
	Kind SegmentKind
	Text string     // Raw literal text, or the Env/Var/Prov name
	Expr []Segment  // only set when Kind == SegExpr
}

// TemplateKind gates which tags are legal in a given field, mirroring
// EnvsOnly/VarsOnly/Regular template types.
type TemplateKind int

const (
	// EnvsOnly permits ${e:…} and ${x:…} (used in the `vars` section).
	EnvsOnly TemplateKind = iota
	// VarsOnly permits only ${v:…} and ${x:…} over vars (no providers).
	VarsOnly
	// Regular permits ${v:…}, ${p:…}, and ${x:…} (endpoint/provider fields).
	Regular
)

// Parse parses input into a sequence of typed Segments legal for kind,
// rejecting tags the kind does not allow and nested complex ${x:…} inside
// primitive Env/Var/Prov blocks.
func Parse(input string, kind TemplateKind) ([]Segment, error) {
	raw, err := parseRaw(input)
	if err != nil {
		return nil, err
	}
	return convertSegments(raw, kind, false)
}

func convertSegments(raw []rawSegment, kind TemplateKind, insideExpr bool) ([]Segment, error) {
	out := make([]Segment, 0, len(raw))
	for _, r := range raw {
		seg, err := convertOne(r, kind, insideExpr)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

func convertOne(r rawSegment, kind TemplateKind, insideExpr bool) (Segment, error) {
	if r.tag == 0 {
		return Segment{Kind: SegRaw, Text: r.literal}, nil
	}
	switch r.tag {
	case 'e':
		if kind != EnvsOnly {
			return Segment{}, fmt.Errorf("template: tag 'e' is not allowed in this field")
		}
		name, err := asPrimitive(r.inner, 'e')
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegEnv, Text: name}, nil
	case 'v':
		if kind == EnvsOnly {
			return Segment{}, fmt.Errorf("template: tag 'v' is not allowed in this field")
		}
		name, err := asPrimitive(r.inner, 'v')
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegVar, Text: name}, nil
	case 'p':
		if kind != Regular {
			return Segment{}, fmt.Errorf("template: tag 'p' is not allowed in this field")
		}
		name, err := asPrimitive(r.inner, 'p')
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegProv, Text: name}, nil
	case 'x':
		if insideExpr {
			return Segment{}, fmt.Errorf("template: ${x:…} templates cannot appear inside of ${x:…} templates")
		}
		inner, err := convertSegments(r.inner, kind, true)
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegExpr, Expr: inner}, nil
	default:
		return Segment{}, fmt.Errorf("template: unrecognized template type %q", r.tag)
	}
}

// asPrimitive requires inner to be a single literal segment: no nested
// templates are allowed inside ${e:…}/${v:…}/${p:…}.
func asPrimitive(inner []rawSegment, tag byte) (string, error) {
	if len(inner) != 1 || inner[0].tag != 0 {
		return "", fmt.Errorf("template type %q can only contain a primitive expression", tag)
	}
	return inner[0].literal, nil
}

// Render renders Segments back into template syntax, escaping literal `$`
// as `$$`.
func Render(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		writeSegment(&sb, s)
	}
	return sb.String()
}

func writeSegment(sb *strings.Builder, s Segment) {
	esc := func(str string) string { return strings.ReplaceAll(str, "$", "$$") }
	switch s.Kind {
	case SegRaw:
		sb.WriteString(esc(s.Text))
	case SegEnv:
		fmt.Fprintf(sb, "${e:%s}", esc(s.Text))
	case SegVar:
		fmt.Fprintf(sb, "${v:%s}", esc(s.Text))
	case SegProv:
		fmt.Fprintf(sb, "${p:%s}", esc(s.Text))
	case SegExpr:
		sb.WriteString("${x:")
		for _, inner := range s.Expr {
			writeSegment(sb, inner)
		}
		sb.WriteString("}")
	}
}

// IsLiteral reports whether segs reduces to plain text with no
// interpolation at all (the PreVars→Resolved "Literal" case).
func IsLiteral(segs []Segment) (string, bool) {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind != SegRaw {
			return "", false
		}
		sb.WriteString(s.Text)
	}
	return sb.String(), true
}

// RequiredProviders collects every ${p:name} referenced directly or inside
// a ${x:…} block.
func RequiredProviders(segs []Segment) []string {
	seen := map[string]bool{}
	var names []string
	var walk func([]Segment)
	walk = func(ss []Segment) {
		for _, s := range ss {
			switch s.Kind {
			case SegProv:
				if !seen[s.Text] {
					seen[s.Text] = true
					names = append(names, s.Text)
				}
			case SegExpr:
				walk(s.Expr)
			}
		}
	}
	walk(segs)
	return names
}
