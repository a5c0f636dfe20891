package eval

import (
	"fmt"
	"math"
	"sort"
)

// arrayNamespace is the subset of numpy exposed to expressions. Functions
// accept any numeric slice (or a scalar) and return []float64 or float64.
func arrayNamespace() map[string]any {
	return map[string]any{
		"pi":  math.Pi,
		"e":   math.E,
		"inf": math.Inf(1),
		"nan": math.NaN(),

		"array":    array,
		"zeros":    filled(0),
		"ones":     filled(1),
		"arange":   arange,
		"linspace": linspace,

		"sum":    total,
		"mean":   mean,
		"median": median,
		"std":    stddev,
		"var":    variance,
		"min":    minimum,
		"max":    maximum,
		"size":   size,

		"abs":   elementwise(math.Abs),
		"sqrt":  elementwise(math.Sqrt),
		"exp":   elementwise(math.Exp),
		"log":   elementwise(math.Log),
		"log10": elementwise(math.Log10),
		"sin":   elementwise(math.Sin),
		"cos":   elementwise(math.Cos),
		"floor": elementwise(math.Floor),
		"ceil":  elementwise(math.Ceil),
		"round": elementwise(math.RoundToEven),

		"add":      broadcast(func(a, b float64) float64 { return a + b }),
		"subtract": broadcast(func(a, b float64) float64 { return a - b }),
		"multiply": broadcast(func(a, b float64) float64 { return a * b }),
		"divide":   broadcast(func(a, b float64) float64 { return a / b }),
		"clip":     clip,
	}
}

func array(x any) ([]float64, error) {
	return toFloats(x)
}

func filled(v float64) func(any) ([]float64, error) {
	return func(n any) ([]float64, error) {
		count, err := toInt(n)
		if err != nil {
			return nil, err
		}
		if count < 0 {
			return nil, fmt.Errorf("negative dimensions are not allowed")
		}
		out := make([]float64, count)
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
}

// arange is arange(stop), arange(start, stop) or arange(start, stop, step).
func arange(args ...any) ([]float64, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("arange expects 1 to 3 arguments, got %d", len(args))
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		v, err := toFloat(a)
		if err != nil {
			return nil, err
		}
		nums[i] = v
	}

	start, stop, step := 0.0, nums[0], 1.0
	if len(nums) >= 2 {
		start, stop = nums[0], nums[1]
	}
	if len(nums) == 3 {
		step = nums[2]
	}
	if step == 0 {
		return nil, fmt.Errorf("arange step cannot be zero")
	}

	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return []float64{}, nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out, nil
}

func linspace(start, stop, num any) ([]float64, error) {
	a, err := toFloat(start)
	if err != nil {
		return nil, err
	}
	b, err := toFloat(stop)
	if err != nil {
		return nil, err
	}
	n, err := toInt(num)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("number of samples must be non-negative, got %d", n)
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = a
		return out, nil
	}
	for i := range out {
		out[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	return out, nil
}

func mean(x any) (float64, error) {
	values, err := toFloats(x)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("mean of an empty array")
	}
	s, _ := total(values)
	return s / float64(len(values)), nil
}

func median(x any) (float64, error) {
	values, err := toFloats(x)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("median of an empty array")
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], nil
	}
	return (values[mid-1] + values[mid]) / 2, nil
}

// variance is the population variance, matching numpy's default ddof=0.
func variance(x any) (float64, error) {
	values, err := toFloats(x)
	if err != nil {
		return 0, err
	}
	m, err := mean(values)
	if err != nil {
		return 0, err
	}
	var acc float64
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return acc / float64(len(values)), nil
}

func stddev(x any) (float64, error) {
	v, err := variance(x)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

func size(x any) (int, error) {
	if !isSequence(x) {
		if _, err := toFloat(x); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return length(x)
}

// elementwise lifts f over arrays; scalars stay scalars.
func elementwise(f func(float64) float64) func(any) (any, error) {
	return func(x any) (any, error) {
		if !isSequence(x) {
			v, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			return f(v), nil
		}
		values, err := toFloats(x)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = f(v)
		}
		return values, nil
	}
}

// broadcast applies f pairwise, stretching a scalar operand across an array.
func broadcast(f func(a, b float64) float64) func(any, any) (any, error) {
	return func(x, y any) (any, error) {
		if !isSequence(x) && !isSequence(y) {
			a, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			b, err := toFloat(y)
			if err != nil {
				return nil, err
			}
			return f(a, b), nil
		}

		xs, err := toFloats(x)
		if err != nil {
			return nil, err
		}
		ys, err := toFloats(y)
		if err != nil {
			return nil, err
		}

		n := len(xs)
		switch {
		case !isSequence(x):
			n = len(ys)
		case isSequence(y) && len(ys) != len(xs):
			return nil, fmt.Errorf("operands could not be broadcast together with shapes (%d,) (%d,)", len(xs), len(ys))
		}

		out := make([]float64, n)
		for i := range out {
			a, b := xs[0], ys[0]
			if isSequence(x) {
				a = xs[i]
			}
			if isSequence(y) {
				b = ys[i]
			}
			out[i] = f(a, b)
		}
		return out, nil
	}
}

func clip(x, lo, hi any) (any, error) {
	low, err := toFloat(lo)
	if err != nil {
		return nil, err
	}
	high, err := toFloat(hi)
	if err != nil {
		return nil, err
	}
	return elementwise(func(v float64) float64 {
		return math.Max(low, math.Min(high, v))
	})(x)
}
