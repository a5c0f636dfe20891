package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecalc/internal/eval"
	"github.com/jpalmerr/pulsecalc/internal/source/local"
)

// evalCmd evaluates an expression once with the given variable values.
var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an expression once",
	Long: `Evaluate an expression with the same namespace calculations use.

Variables are bound with --set name=value. Numeric values are parsed as
numbers, "true" and "false" as booleans, and comma separated numbers in
brackets as arrays; anything else is a string.

Example:
  pulsecalc eval "a + b" --set a=1 --set b=2
  pulsecalc eval "np.mean(w) * gain" --set w=[1,2,3] --set gain=2`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringArray("set", nil, "bind a variable as name=value (repeatable)")
}

func runEval(cmd *cobra.Command, args []string) error {
	sets, _ := cmd.Flags().GetStringArray("set")

	values := make(map[string]any, len(sets))
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid --set %q: want name=value", s)
		}
		values[strings.TrimSpace(name)] = parseSetValue(strings.TrimSpace(raw))
	}

	result, err := eval.New(args[0]).Evaluate(values)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatValue(result))
	return nil
}

// parseSetValue parses a --set value, accepting [1,2,3] for arrays.
func parseSetValue(raw string) any {
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return []float64{}
		}
		parts := strings.Split(inner, ",")
		out := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, ok := local.ParseValue(strings.TrimSpace(p)).(float64)
			if !ok {
				return raw
			}
			out = append(out, f)
		}
		return out
	}
	return local.ParseValue(raw)
}

// formatValue renders a result the way it is shown on the dashboard.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = fmt.Sprint(f)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
