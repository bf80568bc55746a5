// Package jsonvalue implements the universal JSON value type that crosses
// every boundary in the engine: provider streams, template interpolation,
// query evaluation, and the JS bridge all speak this type.
package jsonvalue

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which member of the null|bool|int|float|string|list|object
// union a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindObject
)

// Value is the universal JSON value. Exactly one of the typed fields is
// meaningful, selected by Kind. int and float are kept distinct so integer
// JSON numbers round-trip without drifting into float64 imprecision.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	o    map[string]Value
	keys []string // insertion order for KindObject, so entries() is deterministic; Stable() sorts keys itself
}

func Null() Value                  { return Value{kind: KindNull} }
func Bool(b bool) Value             { return Value{kind: KindBool, b: b} }
func Int(i int64) Value             { return Value{kind: KindInt, i: i} }
func Float(f float64) Value         { return Value{kind: KindFloat, f: f} }
func String(s string) Value         { return Value{kind: KindString, s: s} }
func List(items []Value) Value      { return Value{kind: KindList, l: items} }

// Object builds an object value preserving the given key order.
func Object(keys []string, m map[string]Value) Value {
	ks := make([]string, len(keys))
	copy(ks, keys)
	mm := make(map[string]Value, len(m))
	for k, v := range m {
		mm[k] = v
	}
	return Value{kind: KindObject, o: mm, keys: ks}
}

// NewObject starts an empty object builder-friendly value.
func NewObject() Value {
	return Value{kind: KindObject, o: map[string]Value{}}
}

// Set inserts or overwrites a key, appending to the key order if new.
// Returns the (possibly mutated) value for chained construction.
func (v Value) Set(key string, val Value) Value {
	if v.kind != KindObject {
		v = NewObject()
	}
	if _, exists := v.o[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.o[key] = val
	return v
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.l, true
}

func (v Value) Object() (map[string]Value, []string, bool) {
	if v.kind != KindObject {
		return nil, nil, false
	}
	return v.o, v.keys, true
}

// AsString renders a scalar the way a template interpolation would: no
// quoting, numbers in their canonical textual form.
func (v Value) AsString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return v.Stable()
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Stable produces a deterministic JSON encoding: object keys sorted
// lexicographically regardless of insertion order. Used for unique-provider
// fingerprinting and any place two semantically equal values must hash
// identically.
func (v Value) Stable() string {
	var sb strings.Builder
	v.writeStable(&sb)
	return sb.String()
}

func (v Value) writeStable(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(formatFloat(v.f))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.l {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeStable(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(v.o))
		for k := range v.o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			v.o[k].writeStable(sb)
		}
		sb.WriteByte('}')
	}
}

// DeepEqual implements val_eq semantics: structural equality by value,
// independent of object key order (JS `==` on arrays/objects compares
// references, which this helper exists to bypass).
func DeepEqual(a, b Value) bool {
	if a.kind != b.kind {
		// allow int/float cross-comparison since JSON numbers are one family
		af, aok := a.Float()
		bf, bok := b.Float()
		if aok && bok && (a.kind == KindInt || a.kind == KindFloat) && (b.kind == KindInt || b.kind == KindFloat) {
			return af == bf
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.l) != len(b.l) {
			return false
		}
		for i := range a.l {
			if !DeepEqual(a.l[i], b.l[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.o) != len(b.o) {
			return false
		}
		for k, av := range a.o {
			bv, ok := b.o[k]
			if !ok || !DeepEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// GoString is used by fmt for debugging/logging; not part of the
// serialization contract.
func (v Value) GoString() string {
	return fmt.Sprintf("jsonvalue(%s)", v.Stable())
}
