package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FromGo converts an arbitrary decoded-JSON Go value (the product of
// encoding/json.Unmarshal into interface{}, or of a goja runtime export)
// into a Value. Unrecognized types are coerced to null by the caller using
// the "undefined guard" — this function
// itself errors so callers can decide how to treat the miss.
func FromGo(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		// json.Unmarshal always hands back float64 for numbers; callers that
		// know a field is integral should decode through ParseJSON (which
		// uses json.Number) instead of routing through here.
		return Float(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			cv, err := FromGo(it)
			if err != nil {
				return Value{}, err
			}
			items[i] = cv
		}
		return List(items), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		m := make(map[string]Value, len(t))
		for k, it := range t {
			cv, err := FromGo(it)
			if err != nil {
				return Value{}, err
			}
			keys = append(keys, k)
			m[k] = cv
		}
		return Object(keys, m), nil
	default:
		return Value{}, fmt.Errorf("jsonvalue: cannot convert %T", v)
	}
}

// ToGo converts a Value back into plain Go data (map[string]any,
// []any, etc) suitable for encoding/json.Marshal or handing to a JS
// runtime as an argument.
func (v Value) ToGo() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, it := range v.l {
			out[i] = it.ToGo()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.o))
		for k, it := range v.o {
			out[k] = it.ToGo()
		}
		return out
	}
	return nil
}

// MarshalJSON lets a Value be embedded directly in encoding/json output,
// e.g. stats file records that carry raw provider payloads.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToGo())
}

// UnmarshalJSON decodes standard JSON bytes into a Value preserving object
// key order, which encoding/json's native map decoding does not.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// ParseJSON parses a standalone JSON document (used by file/json providers
// and JS-runtime round-trips) preserving key order and int/float identity.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				itemTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				item, err := decodeToken(dec, itemTok)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return List(items), nil
		case '{':
			keys := []string{}
			m := map[string]Value{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := keyTok.(string)
				valTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				val, err := decodeToken(dec, valTok)
				if err != nil {
					return Value{}, err
				}
				keys = append(keys, key)
				m[key] = val
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Object(keys, m), nil
		}
	}
	return Value{}, fmt.Errorf("jsonvalue: unexpected token %v", tok)
}

// ParseJSONPrefix parses one JSON value starting at the beginning of data
// and reports how many bytes it consumed, used by the whitespace- or
// self-delimited file/json provider to split a stream of concatenated
// JSON values without a top-level array wrapper.
func ParseJSONPrefix(data []byte) (Value, int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return Value{}, 0, err
	}
	return val, int(dec.InputOffset()), nil
}
