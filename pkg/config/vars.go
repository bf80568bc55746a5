package config

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/template"
)

// EnvLookup resolves a `${e:NAME}` reference while decoding the `vars`
// section. Pluggable so tests don't depend on process environment.
type EnvLookup func(name string) (string, error)

// resolveVarsNode decodes the `vars` section's YAML node into a
// name→jsonvalue.Value map, expanding `${e:…}`/`${x:…}` in every string
// scalar it finds (strings containing ${e:…} / ${x:…} are resolved at
// load time); non-string values (numbers, bools, lists,
// nested objects) pass through unexpanded: only string entries carry
// template syntax.
func resolveVarsNode(node yaml.Node, env EnvLookup, rt *template.Runtime) (map[string]jsonvalue.Value, error) {
	out := map[string]jsonvalue.Value{}
	if node.Kind == 0 {
		return out, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: vars must be a mapping, got yaml kind %v", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return nil, fmt.Errorf("config: decoding vars key: %w", err)
		}
		v, err := resolveVarsValue(node.Content[i+1], env, rt)
		if err != nil {
			return nil, fmt.Errorf("config: resolving var %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func resolveVarsValue(node *yaml.Node, env EnvLookup, rt *template.Runtime) (jsonvalue.Value, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		return resolveVarsString(node.Value, env, rt)
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return jsonvalue.Value{}, err
	}
	return jsonvalue.FromGo(raw)
}

// resolveVarsString implements the EnvsOnly template pipeline for one
// vars-section string: literal/${e:…} segments substitute directly, while
// ${x:…} blocks are evaluated as JS (env values spliced in as literal
// source text first, same construction as pkg/template's exprToJS for
// ${p:…}). A string made of nothing but a single ${x:…} block yields that
// expression's native JSON type instead of being stringified, so
// `foo: ${x:1+2}` produces the number 3, not the string "3".
func resolveVarsString(raw string, env EnvLookup, rt *template.Runtime) (jsonvalue.Value, error) {
	segs, err := template.Parse(raw, template.EnvsOnly)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	if len(segs) == 1 && segs[0].Kind == template.SegExpr {
		js, err := envExprToJS(segs[0].Expr, env)
		if err != nil {
			return jsonvalue.Value{}, err
		}
		return rt.Eval(context.Background(), js, nil)
	}

	var sb []byte
	for _, s := range segs {
		switch s.Kind {
		case template.SegRaw:
			sb = append(sb, s.Text...)
		case template.SegEnv:
			v, err := env(s.Text)
			if err != nil {
				return jsonvalue.Value{}, fmt.Errorf("resolving env %q: %w", s.Text, err)
			}
			sb = append(sb, v...)
		case template.SegExpr:
			js, err := envExprToJS(s.Expr, env)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			v, err := rt.Eval(context.Background(), js, nil)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			sb = append(sb, v.AsString()...)
		default:
			return jsonvalue.Value{}, fmt.Errorf("unexpected segment kind %v in vars string", s.Kind)
		}
	}
	return jsonvalue.String(string(sb)), nil
}

// envExprToJS renders a ${x:…} block's inner segments (literal text and
// ${e:…} only — vars templates never see ${v:…}/${p:…}) into JS source,
// substituting ${e:…} immediately since its value is already known.
func envExprToJS(segs []template.Segment, env EnvLookup) (string, error) {
	var sb []byte
	for _, s := range segs {
		switch s.Kind {
		case template.SegRaw:
			sb = append(sb, s.Text...)
		case template.SegEnv:
			v, err := env(s.Text)
			if err != nil {
				return "", fmt.Errorf("resolving env %q: %w", s.Text, err)
			}
			sb = append(sb, v...)
		default:
			return "", fmt.Errorf("vars ${x:…} blocks may only contain literal text and ${e:…}, got kind %v", s.Kind)
		}
	}
	return string(sb), nil
}

// varPathTokenRE splits a `${v:…}` path into its dotted/bracketed
// components, e.g. "a.b[0].c" → ["a", "b", "0", "c"].
var varPathTokenRE = regexp.MustCompile(`[^.\[\]]+`)

// VarLookup adapts a resolved vars map into the lookup pkg/template's
// Template.ResolveVars expects for ${v:…} substitution, supporting the
// dotted/bracketed indexing template.VarLookup documents (e.g.
// "${v:region}" or "${v:servers[0].name}").
func VarLookup(vars map[string]jsonvalue.Value) template.VarLookup {
	return func(path string) (jsonvalue.Value, error) {
		tokens := varPathTokenRE.FindAllString(path, -1)
		if len(tokens) == 0 {
			return jsonvalue.Value{}, fmt.Errorf("config: empty var path")
		}
		v, ok := vars[tokens[0]]
		if !ok {
			return jsonvalue.Value{}, fmt.Errorf("config: var %q is not defined", tokens[0])
		}
		for _, tok := range tokens[1:] {
			if idx, err := strconv.Atoi(tok); err == nil {
				items, ok := v.List()
				if !ok || idx < 0 || idx >= len(items) {
					return jsonvalue.Value{}, fmt.Errorf("config: var path %q: index %d out of range", path, idx)
				}
				v = items[idx]
				continue
			}
			obj, _, ok := v.Object()
			if !ok {
				return jsonvalue.Value{}, fmt.Errorf("config: var path %q: %q is not an object", path, tok)
			}
			field, ok := obj[tok]
			if !ok {
				return jsonvalue.Value{}, fmt.Errorf("config: var path %q: field %q not found", path, tok)
			}
			v = field
		}
		return v, nil
	}
}
