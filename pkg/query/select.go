package query

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/template"
)

// selectKind is a JSON structure whose string leaves are JS expressions,
// integer leaves are literal numbers, and the rest recurse as maps/lists.
type selectKind int

const (
	selectExpr selectKind = iota
	selectMap
	selectList
	selectInt
)

// selectNode is a compiled select tree node: selectExpr carries a
// precompiled program ready for repeated evaluation, compiled once at
// config load.
type selectNode struct {
	kind selectKind
	prog *goja.Program
	keys []string // selectMap only, preserves deterministic output order
	m    map[string]*selectNode
	l    []*selectNode
	i    int64
}

// parseSelect walks a JSON value into an uncompiled select tree: strings
// become expressions, integers become literals, objects/arrays recurse.
// Floats and booleans are rejected as leaves — only Int is allowed among
// non-string/non-structural leaves.
func parseSelect(raw jsonvalue.Value) (rawSelect, error) {
	switch raw.Kind() {
	case jsonvalue.KindString:
		s, _ := raw.String()
		return rawSelect{kind: selectExpr, expr: s}, nil
	case jsonvalue.KindInt:
		i, _ := raw.Int()
		return rawSelect{kind: selectInt, i: i}, nil
	case jsonvalue.KindObject:
		m, keys, _ := raw.Object()
		out := rawSelect{kind: selectMap, keys: append([]string(nil), keys...), m: map[string]rawSelect{}}
		for _, k := range keys {
			child, err := parseSelect(m[k])
			if err != nil {
				return rawSelect{}, err
			}
			out.m[k] = child
		}
		return out, nil
	case jsonvalue.KindList:
		items, _ := raw.List()
		out := rawSelect{kind: selectList}
		for _, item := range items {
			child, err := parseSelect(item)
			if err != nil {
				return rawSelect{}, err
			}
			out.l = append(out.l, child)
		}
		return out, nil
	default:
		return rawSelect{}, fmt.Errorf("query: select leaves must be strings (expressions) or integers, got %v", raw.Kind())
	}
}

// rawSelect is the uncompiled counterpart of selectNode, produced by
// parseSelect directly from config JSON/YAML before any expression has
// been compiled to a program.
type rawSelect struct {
	kind selectKind
	expr string
	i    int64
	keys []string
	m    map[string]rawSelect
	l    []rawSelect
}

// sources collects every JS expression string appearing anywhere in the
// tree, used for the capability analysis pass over the whole query.
func (r rawSelect) sources() []string {
	switch r.kind {
	case selectExpr:
		return []string{r.expr}
	case selectMap:
		var out []string
		for _, k := range r.keys {
			out = append(out, r.m[k].sources()...)
		}
		return out
	case selectList:
		var out []string
		for _, c := range r.l {
			out = append(out, c.sources()...)
		}
		return out
	default:
		return nil
	}
}

// compile turns a rawSelect into a selectNode, precompiling every
// expression leaf with template.CompileProgram (goja.Compile) so syntax
// errors surface at config-load time rather than mid-run.
func (r rawSelect) compile(name string) (*selectNode, error) {
	switch r.kind {
	case selectExpr:
		prog, err := template.CompileProgram(name, wrapExpr(r.expr))
		if err != nil {
			return nil, fmt.Errorf("query: compiling select expression %q: %w", r.expr, err)
		}
		return &selectNode{kind: selectExpr, prog: prog}, nil
	case selectInt:
		return &selectNode{kind: selectInt, i: r.i}, nil
	case selectMap:
		out := &selectNode{kind: selectMap, keys: r.keys, m: map[string]*selectNode{}}
		for _, k := range r.keys {
			child, err := r.m[k].compile(name + "." + k)
			if err != nil {
				return nil, err
			}
			out.m[k] = child
		}
		return out, nil
	case selectList:
		out := &selectNode{kind: selectList}
		for i, c := range r.l {
			child, err := c.compile(fmt.Sprintf("%s[%d]", name, i))
			if err != nil {
				return nil, err
			}
			out.l = append(out.l, child)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("query: unknown select kind %d", r.kind)
	}
}

// evaluate runs the compiled select tree against the given scope,
// reassembling arrays/objects around each evaluated expression leaf.
func (n *selectNode) evaluate(ctx context.Context, rt *template.Runtime, scope map[string]jsonvalue.Value) (jsonvalue.Value, error) {
	switch n.kind {
	case selectExpr:
		return rt.EvalProgram(ctx, n.prog, scope)
	case selectInt:
		return jsonvalue.Int(n.i), nil
	case selectMap:
		out := map[string]jsonvalue.Value{}
		for _, k := range n.keys {
			v, err := n.m[k].evaluate(ctx, rt, scope)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			out[k] = v
		}
		return jsonvalue.Object(n.keys, out), nil
	case selectList:
		out := make([]jsonvalue.Value, len(n.l))
		for i, c := range n.l {
			v, err := c.evaluate(ctx, rt, scope)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			out[i] = v
		}
		return jsonvalue.List(out), nil
	default:
		return jsonvalue.Value{}, fmt.Errorf("query: unknown compiled select kind %d", n.kind)
	}
}
