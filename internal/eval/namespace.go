package eval

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// baseEnv is the namespace every expression is evaluated in. It is built once
// and only ever copied.
var baseEnv = buildBase()

func buildBase() map[string]any {
	mathNS := mathNamespace()
	arrayNS := arrayNamespace()

	env := map[string]any{
		"math":         mathNS,
		"np":           arrayNS,
		"numpy":        arrayNS,
		"epics_string": epicsString,

		"abs":   absolute,
		"min":   minimum,
		"max":   maximum,
		"sum":   total,
		"round": roundHalfEven,
		"len":   length,
		"int":   toInt,
		"float": toFloatFn,
		"str":   toStr,
		"bool":  truthy,
	}
	// math names are also importable at top level ("sqrt(a)" as well as "math.sqrt(a)")
	for k, v := range mathNS {
		if _, taken := env[k]; !taken {
			env[k] = v
		}
	}
	return env
}

func mathNamespace() map[string]any {
	return map[string]any{
		"pi":  math.Pi,
		"e":   math.E,
		"tau": 2 * math.Pi,
		"inf": math.Inf(1),
		"nan": math.NaN(),

		"sqrt":  unary(math.Sqrt),
		"exp":   unary(math.Exp),
		"expm1": unary(math.Expm1),
		"log":   logarithm,
		"log10": unary(math.Log10),
		"log2":  unary(math.Log2),
		"log1p": unary(math.Log1p),
		"sin":   unary(math.Sin),
		"cos":   unary(math.Cos),
		"tan":   unary(math.Tan),
		"asin":  unary(math.Asin),
		"acos":  unary(math.Acos),
		"atan":  unary(math.Atan),
		"sinh":  unary(math.Sinh),
		"cosh":  unary(math.Cosh),
		"tanh":  unary(math.Tanh),
		"asinh": unary(math.Asinh),
		"acosh": unary(math.Acosh),
		"atanh": unary(math.Atanh),
		"fabs":  unary(math.Abs),
		"erf":   unary(math.Erf),
		"erfc":  unary(math.Erfc),
		"gamma": unary(math.Gamma),
		"degrees": unary(func(x float64) float64 {
			return x * 180 / math.Pi
		}),
		"radians": unary(func(x float64) float64 {
			return x * math.Pi / 180
		}),

		"atan2":    binary(math.Atan2),
		"hypot":    binary(math.Hypot),
		"pow":      binary(math.Pow),
		"fmod":     binary(math.Mod),
		"copysign": binary(math.Copysign),

		"floor": rounder(math.Floor),
		"ceil":  rounder(math.Ceil),
		"trunc": rounder(math.Trunc),

		"isnan":    predicate(math.IsNaN),
		"isinf":    predicate(func(x float64) bool { return math.IsInf(x, 0) }),
		"isfinite": predicate(func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }),
	}
}

func unary(f func(float64) float64) func(any) (float64, error) {
	return func(x any) (float64, error) {
		v, err := toFloat(x)
		if err != nil {
			return 0, err
		}
		return f(v), nil
	}
}

func binary(f func(float64, float64) float64) func(any, any) (float64, error) {
	return func(x, y any) (float64, error) {
		a, err := toFloat(x)
		if err != nil {
			return 0, err
		}
		b, err := toFloat(y)
		if err != nil {
			return 0, err
		}
		return f(a, b), nil
	}
}

func rounder(f func(float64) float64) func(any) (int, error) {
	return func(x any) (int, error) {
		v, err := toFloat(x)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot convert %v to integer", v)
		}
		return int(f(v)), nil
	}
}

func predicate(f func(float64) bool) func(any) (bool, error) {
	return func(x any) (bool, error) {
		v, err := toFloat(x)
		if err != nil {
			return false, err
		}
		return f(v), nil
	}
}

// logarithm is log(x) or log(x, base).
func logarithm(args ...any) (float64, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, fmt.Errorf("log expects 1 or 2 arguments, got %d", len(args))
	}
	x, err := toFloat(args[0])
	if err != nil {
		return 0, err
	}
	if x <= 0 {
		return 0, fmt.Errorf("math domain error: log(%v)", x)
	}
	if len(args) == 1 {
		return math.Log(x), nil
	}
	base, err := toFloat(args[1])
	if err != nil {
		return 0, err
	}
	return math.Log(x) / math.Log(base), nil
}

func absolute(x any) (any, error) {
	if isSequence(x) {
		return elementwise(math.Abs)(x)
	}
	switch v := x.(type) {
	case int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	f, err := toFloat(x)
	if err != nil {
		return nil, err
	}
	return math.Abs(f), nil
}

func minimum(args ...any) (float64, error) {
	return reduceArgs("min", args, math.Min)
}

func maximum(args ...any) (float64, error) {
	return reduceArgs("max", args, math.Max)
}

// reduceArgs implements min/max over either a single sequence argument or
// several scalar arguments.
func reduceArgs(name string, args []any, f func(a, b float64) float64) (float64, error) {
	var values []float64
	switch {
	case len(args) == 1:
		vs, err := toFloats(args[0])
		if err != nil {
			return 0, err
		}
		values = vs
	case len(args) > 1:
		values = make([]float64, 0, len(args))
		for _, a := range args {
			v, err := toFloat(a)
			if err != nil {
				return 0, err
			}
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%s of an empty sequence", name)
	}
	out := values[0]
	for _, v := range values[1:] {
		out = f(out, v)
	}
	return out, nil
}

func total(x any) (float64, error) {
	values, err := toFloats(x)
	if err != nil {
		return 0, err
	}
	var s float64
	for _, v := range values {
		s += v
	}
	return s, nil
}

// roundHalfEven is round(x) or round(x, ndigits) with banker's rounding.
func roundHalfEven(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(args))
	}
	x, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return int(math.RoundToEven(x)), nil
	}
	digits, err := toFloat(args[1])
	if err != nil {
		return nil, err
	}
	scale := math.Pow(10, math.Trunc(digits))
	return math.RoundToEven(x*scale) / scale, nil
}

func length(x any) (int, error) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String, reflect.Map:
		return rv.Len(), nil
	default:
		return 0, fmt.Errorf("object of type %T has no len()", x)
	}
}

func toInt(x any) (int, error) {
	if s, ok := x.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid literal for int(): %q", s)
		}
		return n, nil
	}
	v, err := toFloat(x)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("cannot convert %v to integer", v)
	}
	return int(v), nil
}

func toFloatFn(x any) (float64, error) {
	if s, ok := x.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", s)
		}
		return f, nil
	}
	return toFloat(x)
}

func toStr(x any) string {
	switch v := x.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func truthy(x any) bool {
	switch v := x.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	if f, err := toFloat(x); err == nil {
		return f != 0
	}
	return true
}

// toFloat converts a numeric or boolean scalar to float64.
func toFloat(x any) (float64, error) {
	switch v := x.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", x)
	}
}

func isSequence(x any) bool {
	if _, ok := x.(string); ok {
		return false
	}
	k := reflect.ValueOf(x).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// toFloats converts a numeric sequence to []float64. A scalar becomes a
// one-element slice.
func toFloats(x any) ([]float64, error) {
	if vs, ok := x.([]float64); ok {
		out := make([]float64, len(vs))
		copy(out, vs)
		return out, nil
	}
	if !isSequence(x) {
		v, err := toFloat(x)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	}

	rv := reflect.ValueOf(x)
	out := make([]float64, rv.Len())
	for i := range out {
		v, err := toFloat(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
