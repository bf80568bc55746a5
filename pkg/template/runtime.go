package template

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dop251/goja"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// Runtime confines a goja.Runtime to a single dedicated goroutine (goja
// runtimes are not safe for concurrent use) and serializes evaluation
// requests onto it through a request channel that any number of goroutines
// send on and only that goroutine reads: one runtime per test run, one fixed helper-function catalogue,
// optional user "lib" JS injected once at startup.
type Runtime struct {
	reqs   chan evalRequest
	done   chan struct{}
}

type evalRequest struct {
	expr   string
	prog   *goja.Program
	args   map[string]jsonvalue.Value
	result chan evalResult
}

// CompileProgram precompiles a JS source string ahead of time so query
// select/for_each/where expressions are parsed once at config load rather
// than on every evaluation. Compiling is safe to call from any goroutine;
// goja.Program carries no runtime state.
func CompileProgram(name, src string) (*goja.Program, error) {
	return goja.Compile(name, src, false)
}

type evalResult struct {
	value jsonvalue.Value
	err   error
}

// NewRuntime starts the confined goroutine. lib, if non-empty, is
// user-supplied JS evaluated once at startup (a custom "lib" file).
func NewRuntime(lib string) (*Runtime, error) {
	r := &Runtime{
		reqs: make(chan evalRequest),
		done: make(chan struct{}),
	}

	ready := make(chan error, 1)
	go r.loop(lib, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) loop(lib string, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vm := goja.New()
	if err := registerHelpers(vm); err != nil {
		ready <- fmt.Errorf("template: registering helpers: %w", err)
		return
	}
	if lib != "" {
		if _, err := vm.RunString(lib); err != nil {
			ready <- fmt.Errorf("template: evaluating custom lib js: %w", err)
			return
		}
	}
	ready <- nil

	for {
		select {
		case req := <-r.reqs:
			v, err := evalOne(vm, req.expr, req.prog, req.args)
			req.result <- evalResult{value: v, err: err}
		case <-r.done:
			return
		}
	}
}

// Close stops the confined goroutine. Safe to call once.
func (r *Runtime) Close() {
	close(r.done)
}

// Eval runs expr with the given named provider values bound in scope
// (exposed to JS as a single `____provider_values` object) and returns
// the result as a jsonvalue.Value.
func (r *Runtime) Eval(ctx context.Context, expr string, args map[string]jsonvalue.Value) (jsonvalue.Value, error) {
	return r.eval(ctx, expr, nil, args)
}

// EvalProgram runs a program precompiled with CompileProgram, avoiding
// re-parsing the same source on every request — the hot path for query
// select/for_each/where expressions, which are compiled once at config load.
func (r *Runtime) EvalProgram(ctx context.Context, prog *goja.Program, args map[string]jsonvalue.Value) (jsonvalue.Value, error) {
	return r.eval(ctx, "", prog, args)
}

func (r *Runtime) eval(ctx context.Context, expr string, prog *goja.Program, args map[string]jsonvalue.Value) (jsonvalue.Value, error) {
	resultCh := make(chan evalResult, 1)
	req := evalRequest{expr: expr, prog: prog, args: args, result: resultCh}
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return jsonvalue.Value{}, ctx.Err()
	}
	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return jsonvalue.Value{}, ctx.Err()
	}
}

func evalOne(vm *goja.Runtime, expr string, prog *goja.Program, args map[string]jsonvalue.Value) (jsonvalue.Value, error) {
	provVals := vm.NewObject()
	for name, v := range args {
		if err := provVals.Set(name, v.ToGo()); err != nil {
			return jsonvalue.Value{}, err
		}
	}
	if err := vm.Set("____provider_values", provVals); err != nil {
		return jsonvalue.Value{}, err
	}

	var v goja.Value
	var err error
	if prog != nil {
		v, err = vm.RunProgram(prog)
	} else {
		v, err = vm.RunString(expr)
	}
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("template: evaluating expression %q: %w", expr, err)
	}
	if v == nil || goja.IsUndefined(v) {
		// coerce to null rather than propagate a value the rest of the
		// pipeline can't represent.
		return jsonvalue.Null(), nil
	}
	exported := v.Export()
	cv, err := jsonvalue.FromGo(exported)
	if err != nil {
		return jsonvalue.Null(), nil
	}
	return cv, nil
}

func exportAll(args []goja.Value) []jsonvalue.Value {
	out := make([]jsonvalue.Value, len(args))
	for i, a := range args {
		v, err := jsonvalue.FromGo(a.Export())
		if err != nil {
			v = jsonvalue.Null()
		}
		out[i] = v
	}
	return out
}

func registerHelpers(vm *goja.Runtime) error {
	set := func(name string, fn any) error { return vm.Set(name, fn) }

	helpers := map[string]any{
		"encode": func(s string, e string) (string, error) { return helperEncode(s, e) },
		"end_pad": func(s string, minLength int64, padString string) string {
			return helperEndPad(s, minLength, padString)
		},
		"start_pad": func(s string, minLength int64, padString string) string {
			return helperStartPad(s, minLength, padString)
		},
		"entries": func(v goja.Value) any {
			jv, err := jsonvalue.FromGo(v.Export())
			if err != nil {
				return nil
			}
			return helperEntries(jv).ToGo()
		},
		"epoch": func(unit string) (string, error) { return helperEpoch(unit) },
		"if": func(c, a, b goja.Value) any {
			cv, _ := jsonvalue.FromGo(c.Export())
			av, _ := jsonvalue.FromGo(a.Export())
			bv, _ := jsonvalue.FromGo(b.Export())
			return helperIf(cv, av, bv).ToGo()
		},
		"max": func(args ...goja.Value) any { return helperMinMax(true, exportAll(args)).ToGo() },
		"min": func(args ...goja.Value) any { return helperMinMax(false, exportAll(args)).ToGo() },
		"join": func(v goja.Value, sep string, sep2 goja.Value) string {
			jv, _ := jsonvalue.FromGo(v.Export())
			var s2 *string
			if sep2 != nil && !goja.IsUndefined(sep2) {
				s := sep2.String()
				s2 = &s
			}
			return helperJoin(jv, sep, s2)
		},
		"json_path": func(v goja.Value, path string) any {
			jv, _ := jsonvalue.FromGo(v.Export())
			return helperJSONPath(jv, path).ToGo()
		},
		"match": func(s string, pattern string) any {
			return helperMatch(s, pattern).ToGo()
		},
		"parseInt": func(s string) any { return helperParseInt(s).ToGo() },
		"parseFloat": func(s string) any { return helperParseFloat(s).ToGo() },
		"random": func(min, max goja.Value) any {
			mv, _ := jsonvalue.FromGo(min.Export())
			xv, _ := jsonvalue.FromGo(max.Export())
			return helperRandom(mv, xv).ToGo()
		},
		"range": func(start, end int64) any { return helperRange(start, end).ToGo() },
		"repeat": func(min int64, max goja.Value) any {
			var maxPtr *int64
			if max != nil && !goja.IsUndefined(max) {
				m := max.ToInteger()
				maxPtr = &m
			}
			return helperRepeat(min, maxPtr).ToGo()
		},
		"replace": func(needle string, haystack goja.Value, replacer string) any {
			jv, _ := jsonvalue.FromGo(haystack.Export())
			return helperReplace(needle, jv, replacer).ToGo()
		},
		"val_eq": func(a, b goja.Value) bool {
			av, _ := jsonvalue.FromGo(a.Export())
			bv, _ := jsonvalue.FromGo(b.Export())
			return jsonvalue.DeepEqual(av, bv)
		},
	}

	for name, fn := range helpers {
		if err := set(name, fn); err != nil {
			return fmt.Errorf("registering helper %q: %w", name, err)
		}
	}
	return nil
}
