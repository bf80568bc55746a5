package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// HeaderEntry is one (name, value-template) pair. Headers are an ordered
// list rather than a map so that repeated header names (e.g. multiple
// Set-Cookie-style headers) survive decoding intact.
type HeaderEntry struct {
	Name  string
	Value RegularTemplate
}

// Headers is an ordered, duplicate-tolerant header list.
type Headers []HeaderEntry

// UnmarshalYAML walks the mapping node's Content pairs directly instead of
// decoding into a Go map, which is what preserves both order and
// duplicate keys (encoding/yaml's map decoding would silently keep only
// the last of a repeated key).
func (h *Headers) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 {
		*h = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("config: headers must be a mapping, got yaml kind %v", value.Kind)
	}
	out := make(Headers, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("config: decoding header name: %w", err)
		}

		// A bare `null` value decodes as the literal text "null" (auth: null → "null").
		raw := "null"
		if valNode.Tag != "!!null" {
			if err := valNode.Decode(&raw); err != nil {
				return fmt.Errorf("config: decoding header %q value: %w", name, err)
			}
		}
		out = append(out, HeaderEntry{Name: name, Value: regularLiteral(raw)})
	}
	*h = out
	return nil
}
