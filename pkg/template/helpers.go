package template

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/oliveagle/jsonpath"
	"github.com/rivo/uniseg"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// This file implements the helper function catalogue callable from
// `${x:…}` JS blocks. Each helper operates on jsonvalue.Value so the same
// union type flows end to end between providers, templates, and the JS
// bridge (see runtime.go for how these are registered with goja).

// padGraphemes cycles pad_string's grapheme clusters (not bytes) to fill
// the needed width.
func padGraphemes(padString string, n int) string {
	if n <= 0 {
		return ""
	}
	var clusters []string
	g := uniseg.NewGraphemes(padString)
	for g.Next() {
		clusters = append(clusters, g.Str())
	}
	if len(clusters) == 0 {
		return ""
	}
	var sb strings.Builder
	for sb.Len() < n {
		for _, c := range clusters {
			sb.WriteString(c)
			if sb.Len() >= n {
				break
			}
		}
	}
	out := sb.String()
	// pad_string is usually single-grapheme (e.g. "0"), so truncating to n
	// bytes here is equivalent for the common case and avoids a second
	// grapheme-aware truncation pass.
	if len(out) > n {
		return out[:n]
	}
	return out
}

func helperEndPad(s string, minLength int64, padString string) string {
	needed := int(minLength) - len(s)
	return s + padGraphemes(padString, needed)
}

func helperStartPad(s string, minLength int64, padString string) string {
	needed := int(minLength) - len(s)
	return padGraphemes(padString, needed) + s
}

func helperEncode(s string, encoding string) (string, error) {
	e, ok := ParseEncoding(encoding)
	if !ok {
		return "", fmt.Errorf("template: unknown encoding %q", encoding)
	}
	return e.Encode(s), nil
}

func helperEpoch(unit string) (string, error) {
	u, ok := ParseEpochUnit(unit)
	if !ok {
		return "", fmt.Errorf("template: unknown epoch unit %q", unit)
	}
	return u.Get(), nil
}

// helperEntries mirrors entries(): arrays index by position, objects by
// key, strings by character (rune) index.
func helperEntries(v jsonvalue.Value) jsonvalue.Value {
	switch v.Kind() {
	case jsonvalue.KindList:
		items, _ := v.List()
		out := make([]jsonvalue.Value, len(items))
		for i, item := range items {
			out[i] = jsonvalue.List([]jsonvalue.Value{jsonvalue.Int(int64(i)), item})
		}
		return jsonvalue.List(out)
	case jsonvalue.KindObject:
		m, keys, _ := v.Object()
		out := make([]jsonvalue.Value, 0, len(keys))
		for _, k := range keys {
			out = append(out, jsonvalue.List([]jsonvalue.Value{jsonvalue.String(k), m[k]}))
		}
		return jsonvalue.List(out)
	case jsonvalue.KindString:
		s, _ := v.String()
		runes := []rune(s)
		out := make([]jsonvalue.Value, len(runes))
		for i, r := range runes {
			out[i] = jsonvalue.List([]jsonvalue.Value{jsonvalue.Int(int64(i)), jsonvalue.String(string(r))})
		}
		return jsonvalue.List(out)
	default:
		return v
	}
}

// helperIf mirrors if(c, a, b): JS-style truthiness on c.
func helperIf(c jsonvalue.Value, a, b jsonvalue.Value) jsonvalue.Value {
	if isTruthy(c) {
		return a
	}
	return b
}

// IsTruthy mirrors JS truthiness, exported for callers (e.g. pkg/query's
// `where` clause evaluation) that need the same coercion outside of JS.
func IsTruthy(v jsonvalue.Value) bool { return isTruthy(v) }

// isTruthy mirrors JS truthiness for the value kinds jsonvalue can hold:
// null/false/0/0.0/"" are falsy, everything else (including empty
// lists/objects, which JS treats as truthy objects) is truthy.
func isTruthy(v jsonvalue.Value) bool {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return false
	case jsonvalue.KindBool:
		b, _ := v.Bool()
		return b
	case jsonvalue.KindInt:
		i, _ := v.Int()
		return i != 0
	case jsonvalue.KindFloat:
		f, _ := v.Float()
		return f != 0
	case jsonvalue.KindString:
		s, _ := v.String()
		return s != ""
	default:
		return true
	}
}

// helperMinMax mirrors max(...)/min(...): numeric comparison over a
// variadic argument list, float-promoting when any argument is a float.
func helperMinMax(want bool, args []jsonvalue.Value) jsonvalue.Value {
	if len(args) == 0 {
		return jsonvalue.Null()
	}
	anyFloat := false
	for _, a := range args {
		if a.Kind() == jsonvalue.KindFloat {
			anyFloat = true
		}
	}
	best := toF64(args[0])
	bestIsFloat := args[0].Kind() == jsonvalue.KindFloat
	for _, a := range args[1:] {
		f := toF64(a)
		if want && f > best || !want && f < best {
			best = f
			bestIsFloat = a.Kind() == jsonvalue.KindFloat
		}
	}
	if anyFloat || bestIsFloat {
		return jsonvalue.Float(best)
	}
	return jsonvalue.Int(int64(best))
}

func toF64(v jsonvalue.Value) float64 {
	if i, ok := v.Int(); ok {
		return float64(i)
	}
	f, _ := v.Float()
	return f
}

func helperAsStr(v jsonvalue.Value) string {
	if s, ok := v.String(); ok {
		return s
	}
	return v.AsString()
}

// helperJoin mirrors join(value, separator, separator2?).
func helperJoin(v jsonvalue.Value, sep string, sep2 *string) string {
	switch v.Kind() {
	case jsonvalue.KindList:
		items, _ := v.List()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = helperAsStr(it)
		}
		return strings.Join(parts, sep)
	case jsonvalue.KindObject:
		if sep2 != nil {
			m, keys, _ := v.Object()
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+*sep2+helperAsStr(m[k]))
			}
			return strings.Join(parts, sep)
		}
		return v.AsString()
	case jsonvalue.KindString:
		s, _ := v.String()
		return s
	default:
		return v.AsString()
	}
}

var jsonPathCache sync.Map // string -> *jsonpath.Compiled

func compileJSONPath(path string) (*jsonpath.Compiled, error) {
	if v, ok := jsonPathCache.Load(path); ok {
		return v.(*jsonpath.Compiled), nil
	}
	c, err := jsonpath.Compile(path)
	if err != nil {
		return nil, err
	}
	jsonPathCache.Store(path, c)
	return c, nil
}

// helperJSONPath implements json_path(v, s): selects zero or more values,
// always returning a list even for a single match.
func helperJSONPath(v jsonvalue.Value, path string) jsonvalue.Value {
	c, err := compileJSONPath(path)
	if err != nil {
		return jsonvalue.List(nil)
	}
	result, err := c.Lookup(v.ToGo())
	if err != nil {
		return jsonvalue.List(nil)
	}
	if arr, ok := result.([]interface{}); ok {
		out := make([]jsonvalue.Value, 0, len(arr))
		for _, item := range arr {
			cv, err := jsonvalue.FromGo(item)
			if err != nil {
				continue
			}
			out = append(out, cv)
		}
		return jsonvalue.List(out)
	}
	cv, err := jsonvalue.FromGo(result)
	if err != nil {
		return jsonvalue.List(nil)
	}
	return jsonvalue.List([]jsonvalue.Value{cv})
}

var regexCache sync.Map // string -> *regexp.Regexp (or nil on compile error)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		if v == nil {
			return nil, fmt.Errorf("template: invalid regex %q", pattern)
		}
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		regexCache.Store(pattern, nil)
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// helperMatch mirrors match(s, regex): returns an object of named/numbered
// capture groups, or null if the regex doesn't match (or fails to compile).
func helperMatch(s, pattern string) jsonvalue.Value {
	re, err := compileRegex(pattern)
	if err != nil {
		return jsonvalue.Null()
	}
	names := re.SubexpNames()
	m := re.FindStringSubmatch(s)
	if m == nil {
		return jsonvalue.Null()
	}
	keys := make([]string, 0, len(m))
	obj := make(map[string]jsonvalue.Value, len(m))
	for i, group := range m {
		key := names[i]
		if key == "" {
			key = strconv.Itoa(i)
		}
		keys = append(keys, key)
		obj[key] = jsonvalue.String(group)
	}
	return jsonvalue.Object(keys, obj)
}

func helperParseInt(s string) jsonvalue.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return jsonvalue.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return jsonvalue.Int(int64(f))
	}
	return jsonvalue.Null()
}

func helperParseFloat(s string) jsonvalue.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return jsonvalue.Float(f)
	}
	return jsonvalue.Null()
}

// helperRandom mirrors random(min, max): integer range if both operands
// are integral, else a float range.
func helperRandom(min, max jsonvalue.Value) jsonvalue.Value {
	if mi, ok := min.Int(); ok {
		if ma, ok := max.Int(); ok {
			if ma <= mi {
				return jsonvalue.Int(mi)
			}
			return jsonvalue.Int(mi + rand.Int63n(ma-mi))
		}
	}
	mf, _ := min.Float()
	maf, _ := max.Float()
	if maf <= mf {
		return jsonvalue.Float(mf)
	}
	return jsonvalue.Float(mf + rand.Float64()*(maf-mf))
}

// helperRange mirrors range(start, end): ascending exclusive of end when
// start<end, descending inclusive-ish when start>end, empty when equal.
func helperRange(start, end int64) jsonvalue.Value {
	var out []jsonvalue.Value
	switch {
	case start == end:
	case start < end:
		for v := start; v < end; v++ {
			out = append(out, jsonvalue.Int(v))
		}
	default:
		for v := start; v > end; v-- {
			out = append(out, jsonvalue.Int(v))
		}
	}
	return jsonvalue.List(out)
}

// helperRepeat mirrors repeat(min, max?): a list of `len` nulls, where len
// is min when max is absent, or a uniform random pick in [min,max] when
// present. The JS side uses .length on the result, so the element values
// are irrelevant placeholders.
func helperRepeat(min int64, max *int64) jsonvalue.Value {
	n := min
	if max != nil && *max > min {
		n = min + rand.Int63n(*max-min+1)
	}
	if n < 0 {
		n = 0
	}
	out := make([]jsonvalue.Value, n)
	for i := range out {
		out[i] = jsonvalue.Null()
	}
	return jsonvalue.List(out)
}

// helperReplace mirrors replace(needle, haystack, replacer): recurses into
// lists/objects (including object keys), applying strings.ReplaceAll at the
// leaves.
func helperReplace(needle string, haystack jsonvalue.Value, replacer string) jsonvalue.Value {
	switch haystack.Kind() {
	case jsonvalue.KindString:
		s, _ := haystack.String()
		return jsonvalue.String(strings.ReplaceAll(s, needle, replacer))
	case jsonvalue.KindList:
		items, _ := haystack.List()
		out := make([]jsonvalue.Value, len(items))
		for i, it := range items {
			out[i] = helperReplace(needle, it, replacer)
		}
		return jsonvalue.List(out)
	case jsonvalue.KindObject:
		m, keys, _ := haystack.Object()
		newKeys := make([]string, len(keys))
		newObj := make(map[string]jsonvalue.Value, len(m))
		for i, k := range keys {
			nk := strings.ReplaceAll(k, needle, replacer)
			newKeys[i] = nk
			newObj[nk] = helperReplace(needle, m[k], replacer)
		}
		return jsonvalue.Object(newKeys, newObj)
	default:
		return haystack
	}
}
