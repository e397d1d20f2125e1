package helm

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Values represents helm chart values as a map.
type Values map[string]any

// Merge deep-merges Values maps with later maps taking precedence.
// Nested maps are merged key by key; any other value is replaced.
func Merge(valueMaps ...Values) Values {
	result := make(Values)
	for _, m := range valueMaps {
		for k, v := range m {
			if src, ok := asMap(v); ok {
				if dst, ok := asMap(result[k]); ok {
					result[k] = Merge(dst, src)
					continue
				}
				result[k] = Merge(src)
				continue
			}
			result[k] = v
		}
	}
	return result
}

func asMap(v any) (Values, bool) {
	switch m := v.(type) {
	case Values:
		return m, true
	case map[string]any:
		return Values(m), true
	}
	return nil, false
}

// ToMap converts nested Values into plain maps as Helm expects.
func (v Values) ToMap() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = plain(val)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case Values:
		return t.ToMap()
	case map[string]any:
		return Values(t).ToMap()
	case []Values:
		list := make([]any, len(t))
		for i := range t {
			list[i] = t[i].ToMap()
		}
		return list
	case []any:
		list := make([]any, len(t))
		for i := range t {
			list[i] = plain(t[i])
		}
		return list
	}
	return v
}

// ToYAML converts values to YAML bytes.
func (v Values) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(v.ToMap()); err != nil {
		return nil, fmt.Errorf("failed to encode values to YAML: %w", err)
	}

	return buf.Bytes(), nil
}

// FromYAML parses YAML bytes into Values.
func FromYAML(data []byte) (Values, error) {
	var values Values
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse YAML values: %w", err)
	}
	return values, nil
}
