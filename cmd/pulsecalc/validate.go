package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecalc"
	"github.com/jpalmerr/pulsecalc/config"
	"github.com/jpalmerr/pulsecalc/internal/eval"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PulseCalc configuration file without starting the server.

This command parses the YAML, expands environment variables, parses every
calc address and checks that each expression only uses its own inputs and
built-in names. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsecalc validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	addresses, err := config.BuildAddresses(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(addresses))
	for _, raw := range addresses {
		addr, err := pulsecalc.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if seen[addr.Name] {
			return fmt.Errorf("invalid config: duplicate calc name %q", addr.Name)
		}
		seen[addr.Name] = true

		if addr.ListenerOnly() {
			continue
		}
		names := make([]string, 0, len(addr.Subscriptions))
		for _, s := range addr.Subscriptions {
			names = append(names, s.Name)
		}
		if err := eval.Check(addr.Expression, names); err != nil {
			return fmt.Errorf("invalid config: calc %s: %w", addr.Name, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Calculations:  %d from calcs + %d from channels = %d total\n",
		len(cfg.Calcs), len(cfg.Channels), len(addresses))
	fmt.Fprintf(out, "  Locals:        %d\n", len(cfg.Locals))

	return nil
}
