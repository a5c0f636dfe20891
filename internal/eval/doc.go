// Package eval evaluates calc expressions against a restricted namespace.
//
// Expressions are compiled with github.com/expr-lang/expr with every expr
// builtin disabled, so the only callable names are the ones published by this
// package:
//
//   - math functions and constants, both at top level (sqrt, pi, ...) and
//     under the math namespace (math.sqrt, math.pi, ...)
//   - array helpers under np and numpy (np.mean, np.sum, np.array, ...)
//   - a small set of conversion builtins (abs, min, max, round, len, int,
//     float, str, bool, sum)
//   - epics_string, which decodes a zero-terminated byte buffer
//
// Each evaluation binds the caller's variables on top of a fresh copy of the
// base namespace, so nothing leaks between evaluations.
package eval
