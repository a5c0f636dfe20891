package poller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extract turns a response body into a channel value.
//
// With an empty path the trimmed body text is used, parsed as a float64 when
// it is numeric. Otherwise the body is decoded as JSON and path is walked
// with dot notation; numeric parts index into arrays. The selected value may
// be a number (float64), string, bool or an array of numbers ([]float64).
func Extract(body []byte, path []string) (any, error) {
	if len(path) == 0 {
		text := strings.TrimSpace(string(body))
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f, nil
		}
		return text, nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	current := data
	for i, part := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found", strings.Join(path[:i+1], "."))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range at %q", part, strings.Join(path[:i], "."))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %q", strings.Join(path[:i], "."))
		}
	}

	return scalar(current)
}

func scalar(v any) (any, error) {
	switch val := v.(type) {
	case float64, string, bool:
		return val, nil
	case []any:
		out := make([]float64, len(val))
		for i, el := range val {
			f, ok := el.(float64)
			if !ok {
				return nil, fmt.Errorf("array element %d is %T, want number", i, el)
			}
			out[i] = f
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("value is null")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
