package config

import (
	"fmt"
	"io"
	"sort"

	"github.com/jpalmerr/pulsecalc"
)

// BuildAddresses converts parsed configuration into calc channel
// addresses, structured calcs first, then raw channels.
//
// Every address is parsed, so a malformed calc or channel fails here with a
// [*pulsecalc.ConfigurationError] rather than when the board starts.
func BuildAddresses(cfg *Config) ([]string, error) {
	var addresses []string

	for i, cc := range cfg.Calcs {
		addr, err := buildCalcAddress(cc)
		if err != nil {
			return nil, fmt.Errorf("calcs[%d] (%s): %w", i, cc.Name, err)
		}
		addresses = append(addresses, addr)
	}

	for i, ch := range cfg.Channels {
		if _, err := pulsecalc.ParseAddress(ch); err != nil {
			return nil, fmt.Errorf("channels[%d]: %w", i, err)
		}
		addresses = append(addresses, ch)
	}

	return addresses, nil
}

// buildCalcAddress serializes a CalcConfig as a calc:// address.
func buildCalcAddress(cc CalcConfig) (string, error) {
	names := make([]string, 0, len(cc.Inputs))
	for k := range cc.Inputs {
		names = append(names, k)
	}
	sort.Strings(names)

	addr := pulsecalc.Address{
		Name:       cc.Name,
		Expression: cc.Expr,
		Update:     cc.Update,
	}
	for _, n := range names {
		addr.Subscriptions = append(addr.Subscriptions, pulsecalc.Subscription{Name: n, Address: cc.Inputs[n]})
	}

	raw := addr.String()
	if _, err := pulsecalc.ParseAddress(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// BuildOptions converts parsed configuration into board options. The
// recorder, when set, is appended as [pulsecalc.WithRecorder].
func BuildOptions(cfg *Config, recorder io.Writer) ([]pulsecalc.Option, error) {
	addresses, err := BuildAddresses(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pulsecalc.Option{
		pulsecalc.WithChannels(addresses...),
		pulsecalc.WithPort(cfg.Port),
		pulsecalc.WithPollInterval(cfg.PollInterval.Duration()),
	}
	if cfg.Title != "" {
		opts = append(opts, pulsecalc.WithTitle(cfg.Title))
	}
	if cfg.HTTPTimeout != 0 {
		opts = append(opts, pulsecalc.WithHTTPTimeout(cfg.HTTPTimeout.Duration()))
	}

	// sort keys for deterministic ordering
	names := make([]string, 0, len(cfg.Locals))
	for k := range cfg.Locals {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		opts = append(opts, pulsecalc.WithLocal(n, normalizeLocal(cfg.Locals[n])))
	}

	if recorder != nil {
		opts = append(opts, pulsecalc.WithRecorder(recorder))
	}
	return opts, nil
}

// normalizeLocal turns YAML integers into float64 so locals match the
// numbers delivered by other sources. Lists become []float64 when every
// element is numeric.
func normalizeLocal(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		out := make([]float64, 0, len(x))
		for _, e := range x {
			f, ok := normalizeLocal(e).(float64)
			if !ok {
				return v
			}
			out = append(out, f)
		}
		return out
	default:
		return v
	}
}
