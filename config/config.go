// Package config provides YAML configuration parsing for PulseCalc.
//
// This package enables running PulseCalc as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Beamline Calculations
//	port: 8080
//	poll_interval: 5s
//	record: /var/lib/pulsecalc/updates.cbor
//
//	locals:
//	  gain: 2.5
//
//	calcs:
//	  - name: corrected
//	    expr: current * gain
//	    inputs:
//	      current: ${BEAM_URL:-http://localhost:9000/beam}#data.current
//	      gain: loc://gain
//	    update: [current]
//
//	channels:
//	  - calc://doubled?x=loc://x&expr=x*2
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort         = 8080
	defaultPollInterval = 5 * time.Second
)

// minPollInterval is the minimum allowed polling interval for http inputs.
// This prevents accidental DoS of endpoints with overly aggressive polling.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure for PulseCalc.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "PulseCalc" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between polls of http(s) inputs.
	// Accepts duration strings like "10s", "1m". Defaults to 5s.
	PollInterval Duration `yaml:"poll_interval"`

	// HTTPTimeout is the per-request timeout of http(s) inputs.
	// Defaults to the SDK default when not set.
	HTTPTimeout Duration `yaml:"http_timeout"`

	// Record is the file channel updates are appended to. Empty disables
	// recording. Supports environment variable substitution.
	Record string `yaml:"record"`

	// Locals seeds loc:// variables by name.
	Locals map[string]any `yaml:"locals"`

	// Calcs defines calculations in structured form.
	Calcs []CalcConfig `yaml:"calcs"`

	// Channels lists raw calc:// addresses.
	// Supports environment variable substitution.
	Channels []string `yaml:"channels"`
}

// CalcConfig defines one calculation.
type CalcConfig struct {
	// Name is the calculation name shown in the dashboard.
	Name string `yaml:"name"`

	// Expr is the expression evaluated over the inputs.
	Expr string `yaml:"expr"`

	// Inputs maps expression variables to input addresses.
	// Addresses support environment variable substitution.
	Inputs map[string]string `yaml:"inputs"`

	// Update lists the variables whose changes trigger a recompute. Omit it
	// to recompute on every input; an empty list disables value triggers.
	Update []string `yaml:"update"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in input addresses, channels and the
// record path. Defaults are applied for Port (8080) and PollInterval (5s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
// Address syntax is checked by the builder, which owns the address format.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.HTTPTimeout.Duration() < 0 {
		return fmt.Errorf("http_timeout cannot be negative, got %s", c.HTTPTimeout.Duration())
	}

	if c.Record != "" {
		expanded, err := expandEnvVars(c.Record)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		c.Record = expanded
	}

	for name := range c.Locals {
		if name == "" {
			return errors.New("locals: variable name cannot be empty")
		}
	}

	for i := range c.Calcs {
		cc := &c.Calcs[i]

		if cc.Name == "" {
			return fmt.Errorf("calcs[%d]: name is required", i)
		}
		if cc.Expr == "" {
			return fmt.Errorf("calcs[%d] (%s): expr is required", i, cc.Name)
		}

		for v, addr := range cc.Inputs {
			if addr == "" {
				return fmt.Errorf("calcs[%d] (%s): inputs[%s]: address is required", i, cc.Name, v)
			}
			expanded, err := expandEnvVars(addr)
			if err != nil {
				return fmt.Errorf("calcs[%d] (%s): inputs[%s]: %w", i, cc.Name, v, err)
			}
			cc.Inputs[v] = expanded
		}

		for _, u := range cc.Update {
			if _, ok := cc.Inputs[u]; !ok {
				return fmt.Errorf("calcs[%d] (%s): update names unknown input %q", i, cc.Name, u)
			}
		}
	}

	for i, ch := range c.Channels {
		if ch == "" {
			return fmt.Errorf("channels[%d]: address is required", i)
		}
		expanded, err := expandEnvVars(ch)
		if err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
		c.Channels[i] = expanded
	}

	if len(c.Calcs) == 0 && len(c.Channels) == 0 {
		return errors.New("at least one calc or channel must be defined")
	}

	return nil
}
