package eval

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

const defaultStringEncoding = "utf-8"

// epicsString decodes a character waveform into text. EPICS char arrays are
// zero terminated, so everything from the first zero element on is dropped.
//
// The optional second argument names the encoding ("utf-8" by default; any
// WHATWG encoding label such as "latin1" or "shift_jis" is accepted).
func epicsString(value any, encoding ...string) (string, error) {
	if len(encoding) > 1 {
		return "", fmt.Errorf("epics_string expects at most 2 arguments, got %d", len(encoding)+1)
	}
	name := defaultStringEncoding
	if len(encoding) == 1 && encoding[0] != "" {
		name = encoding[0]
	}

	raw, err := toBytes(value)
	if err != nil {
		return "", err
	}
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}

	return decodeBytes(raw, name)
}

func decodeBytes(raw []byte, name string) (string, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "utf-8" || label == "utf8" {
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("'utf-8' codec can't decode %d bytes", len(raw))
		}
		return string(raw), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("unknown encoding: %s", name)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

// toBytes flattens a string, byte slice or integer slice into raw bytes.
// Integer elements keep their low byte, so signed char waveforms decode the
// same way unsigned ones do.
func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("epics_string expects an array, got %T", value)
	}

	out := make([]byte, rv.Len())
	for i := range out {
		f, err := toFloat(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = byte(int64(f))
	}
	return out, nil
}
