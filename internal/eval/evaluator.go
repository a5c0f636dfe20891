package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ErrEvaluation is wrapped by every error returned from [Evaluator.Evaluate]
// and [Check].
var ErrEvaluation = errors.New("evaluation failed")

// Evaluator evaluates a single expression against changing variable sets.
//
// An Evaluator is immutable and safe for concurrent use.
type Evaluator struct {
	expression string
}

// New returns an [Evaluator] for expression. The expression is not compiled
// until the first call to [Evaluator.Evaluate].
func New(expression string) *Evaluator {
	return &Evaluator{expression: expression}
}

// Expression returns the expression text.
func (e *Evaluator) Expression() string {
	return e.expression
}

// Evaluate binds values on top of the base namespace and evaluates the
// expression once.
//
// Syntax errors, runtime errors, references to unknown names and numeric
// results that are NaN or infinite are all reported as errors wrapping
// [ErrEvaluation].
func (e *Evaluator) Evaluate(values map[string]any) (any, error) {
	env := newEnv(values)

	// compiled per call: the checker types variables from the values it sees
	program, err := expr.Compile(e.expression, expr.Env(env), expr.DisableAllBuiltins())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	if f, ok := out.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, fmt.Errorf("%w: result is not a finite number (%v)", ErrEvaluation, f)
	}
	return out, nil
}

// Check reports whether expression parses and only references names from
// the base namespace or the given variable names. It does not run the
// expression.
func Check(expression string, names []string) error {
	tree, err := parser.Parse(expression)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	v := &identCollector{seen: make(map[string]struct{})}
	ast.Walk(&tree.Node, v)

	var unknown []string
	for name := range v.seen {
		if _, ok := known[name]; ok {
			continue
		}
		if _, ok := baseEnv[name]; ok {
			continue
		}
		unknown = append(unknown, name)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown names %v", ErrEvaluation, unknown)
	}
	return nil
}

// namespaces are the module names expressions reach through a selector,
// such as "math.sqrt" or "np.mean".
var namespaces = map[string]struct{}{
	"math":  {},
	"np":    {},
	"numpy": {},
}

// IsReserved reports whether name is a namespace module and so cannot be
// used as a variable name. Other base names such as "min" or "e" may be
// shadowed by a variable.
func IsReserved(name string) bool {
	_, ok := namespaces[name]
	return ok
}

// identCollector gathers the identifiers referenced by an expression.
type identCollector struct {
	seen map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		c.seen[n.Value] = struct{}{}
	}
}

// newEnv layers values over a fresh copy of the base namespace.
func newEnv(values map[string]any) map[string]any {
	env := make(map[string]any, len(baseEnv)+len(values))
	for k, v := range baseEnv {
		env[k] = v
	}
	for k, v := range values {
		env[k] = v
	}
	return env
}
