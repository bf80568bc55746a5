package query

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/template"
)

// Config is the post-parse, pre-compile shape of a query: what YAML/JSON
// decodes into before expressions are compiled.
type Config struct {
	Select  jsonvalue.Value
	ForEach []string
	Where   *string
}

// Simple builds a Config for the common case of a single select
// expression with no structure, mirroring Query::simple.
func Simple(selectExpr string, forEach []string, where *string) Config {
	return Config{Select: jsonvalue.String(selectExpr), ForEach: forEach, Where: where}
}

// Query is a compiled select/for_each/where, ready to run repeatedly
// against per-response data.
type Query struct {
	name         string
	root         *selectNode
	forEach      []*goja.Program
	where        *goja.Program
	capabilities Capability
}

// Compile parses and precompiles a Config's expressions. name is used
// only to label compile errors and goja stack traces.
func Compile(name string, cfg Config) (*Query, error) {
	raw, err := parseSelect(cfg.Select)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}

	sources := append([]string(nil), raw.sources()...)
	sources = append(sources, cfg.ForEach...)
	if cfg.Where != nil {
		sources = append(sources, *cfg.Where)
	}
	caps := AnalyzeRequiredCapabilities(sources...)

	root, err := raw.compile(name + ".select")
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}

	forEach := make([]*goja.Program, len(cfg.ForEach))
	for i, fe := range cfg.ForEach {
		prog, err := template.CompileProgram(fmt.Sprintf("%s.for_each[%d]", name, i), wrapExpr(fe))
		if err != nil {
			return nil, fmt.Errorf("query %q: compiling for_each[%d] %q: %w", name, i, fe, err)
		}
		forEach[i] = prog
	}

	var where *goja.Program
	if cfg.Where != nil {
		where, err = template.CompileProgram(name+".where", wrapExpr(*cfg.Where))
		if err != nil {
			return nil, fmt.Errorf("query %q: compiling where %q: %w", name, *cfg.Where, err)
		}
	}

	return &Query{name: name, root: root, forEach: forEach, where: where, capabilities: caps}, nil
}

// RequiredCapabilities reports which request/response/stats/control-flow
// surfaces this query's expressions reference (
// required-provider analysis).
func (q *Query) RequiredCapabilities() Capability { return q.capabilities }

// wrapExpr makes an arbitrary query/for_each/where JS snippet runnable
// through the shared Runtime, which only exposes bindings via the single
// `____provider_values` object: the scope's keys are destructured back
// into bare identifiers (request, response, stats, for_each, error, and
// any user provider name) so query expressions can reference them as
// readonly globals.
func wrapExpr(expr string) string {
	return "(function(____ctx){ with(____ctx) { return (" + expr + "); } })(____provider_values)"
}

// Run evaluates this query against one response's data: binds the given
// named values (request/response/stats/error/user providers) as scope,
// expands for_each into a Cartesian product of tuples, evaluates where
// per tuple, and runs select for every tuple that passes.
func (q *Query) Run(ctx context.Context, rt *template.Runtime, data map[string]jsonvalue.Value) ([]jsonvalue.Value, error) {
	tuples, err := q.expandForEach(ctx, rt, data)
	if err != nil {
		return nil, err
	}

	var results []jsonvalue.Value
	for _, tuple := range tuples {
		scope := data
		if tuple != nil {
			scope = cloneScope(data)
			scope["for_each"] = jsonvalue.List(tuple)
		}

		if q.where != nil {
			wv, err := rt.EvalProgram(ctx, q.where, scope)
			if err != nil {
				return nil, fmt.Errorf("query %q: evaluating where: %w", q.name, err)
			}
			if !template.IsTruthy(wv) {
				continue
			}
		}

		v, err := q.root.evaluate(ctx, rt, scope)
		if err != nil {
			return nil, fmt.Errorf("query %q: evaluating select: %w", q.name, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// expandForEach evaluates each for_each expression (each expected to
// yield an array; non-array results are treated as a single-element
// list) and returns the Cartesian product of tuples. A nil tuple (single
// entry) means "select exactly once, no for_each binding" when
// cfg.ForEach was empty.
func (q *Query) expandForEach(ctx context.Context, rt *template.Runtime, data map[string]jsonvalue.Value) ([][]jsonvalue.Value, error) {
	if len(q.forEach) == 0 {
		return [][]jsonvalue.Value{nil}, nil
	}

	lists := make([][]jsonvalue.Value, len(q.forEach))
	for i, prog := range q.forEach {
		v, err := rt.EvalProgram(ctx, prog, data)
		if err != nil {
			return nil, fmt.Errorf("query %q: evaluating for_each[%d]: %w", q.name, i, err)
		}
		if items, ok := v.List(); ok {
			lists[i] = items
		} else {
			lists[i] = []jsonvalue.Value{v}
		}
	}
	return cartesianProduct(lists), nil
}

func cartesianProduct(lists [][]jsonvalue.Value) [][]jsonvalue.Value {
	result := [][]jsonvalue.Value{{}}
	for _, list := range lists {
		var next [][]jsonvalue.Value
		for _, prefix := range result {
			for _, item := range list {
				tuple := append(append([]jsonvalue.Value(nil), prefix...), item)
				next = append(next, tuple)
			}
		}
		result = next
	}
	return result
}

func cloneScope(data map[string]jsonvalue.Value) map[string]jsonvalue.Value {
	out := make(map[string]jsonvalue.Value, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	return out
}

// String returns the query's label, useful for logging/error context.
func (q *Query) String() string { return q.name }
