// Package main is the entry point for the pulsecalc CLI.
//
// PulseCalc can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pulsecalc serve -c config.yaml            # Start the dashboard
//	pulsecalc validate -c config.yaml         # Validate configuration
//	pulsecalc eval "a+b" --set a=1 --set b=2  # Evaluate an expression once
//	pulsecalc history updates.cbor            # Print recorded updates
//	pulsecalc version                         # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsecalc",
	Short: "Live calculations over channel values",
	Long: `PulseCalc computes named expressions over live input channels.

Inputs are local variables (loc://), polled HTTP endpoints (http://, https://)
or other calculations (calc://). Results are shown in a web UI with
Server-Sent Events for live updates.

Quick start:
  1. Create a config file (pulsecalc.yaml)
  2. Run: pulsecalc serve -c pulsecalc.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  locals:
    a: 1
    b: 2
  calcs:
    - name: sum
      expr: a + b
      inputs:
        a: loc://a
        b: loc://b`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsecalc binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pulsecalc %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
