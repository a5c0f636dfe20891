package pulsecalc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// config holds mutable state during Board and Registry construction.
type config struct {
	title        string
	port         int
	channels     []string
	logger       *slog.Logger
	dispatcher   Dispatcher
	sources      map[string]SourceFunc
	locals       []localValue
	pollInterval time.Duration
	httpTimeout  time.Duration
	recorder     io.Writer
	callbacks    []func(ChannelUpdate)
}

type localValue struct {
	name  string
	value any
}

// Option configures a [Board] or a [Registry] during construction.
//
// Options return an error if validation fails. Options that only concern
// the dashboard ([WithChannel], [WithPort], [WithTitle], [WithRecorder]) are
// ignored by [NewRegistry].
type Option func(*config) error

// WithChannel adds a calc channel to display on the board.
//
// Can be called multiple times. Each address is parsed when the board is
// created, so malformed addresses fail [New].
//
// Example:
//
//	board, err := pulsecalc.New(
//	    pulsecalc.WithChannel("calc://sum?a=loc://a&b=loc://b&expr=a+b"),
//	)
func WithChannel(address string) Option {
	return func(cfg *config) error {
		cfg.channels = append(cfg.channels, address)
		return nil
	}
}

// WithChannels adds several calc channels at once.
func WithChannels(addresses ...string) Option {
	return func(cfg *config) error {
		cfg.channels = append(cfg.channels, addresses...)
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// Defaults to 8080 if not specified. Returns an error if the port is outside
// the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *config) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "PulseCalc".
func WithTitle(title string) Option {
	return func(cfg *config) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger].
//
// If not specified, [slog.Default] is used. Returns an error if the logger
// is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithDispatcher delivers listener notifications through d instead of an
// event loop owned by the registry. The caller is responsible for draining d.
func WithDispatcher(d Dispatcher) Option {
	return func(cfg *config) error {
		if d == nil {
			return errors.New("dispatcher cannot be nil")
		}
		cfg.dispatcher = d
		return nil
	}
}

// WithSource registers the source used for input addresses of the given
// scheme, replacing any built-in source for it.
//
// Example:
//
//	pulsecalc.WithSource("sim", func(addr string, onConn func(bool), onValue func(any)) (pulsecalc.Channel, error) {
//	    return newSimChannel(addr, onConn, onValue), nil
//	})
func WithSource(scheme string, fn SourceFunc) Option {
	return func(cfg *config) error {
		if scheme == "" {
			return errors.New("source scheme cannot be empty")
		}
		if scheme == Scheme {
			return fmt.Errorf("scheme %q is reserved", Scheme)
		}
		if fn == nil {
			return fmt.Errorf("source for scheme %q cannot be nil", scheme)
		}
		if cfg.sources == nil {
			cfg.sources = make(map[string]SourceFunc)
		}
		cfg.sources[scheme] = fn
		return nil
	}
}

// WithLocal seeds the local variable loc://name with value.
func WithLocal(name string, value any) Option {
	return func(cfg *config) error {
		if name == "" {
			return errors.New("local variable name cannot be empty")
		}
		cfg.locals = append(cfg.locals, localValue{name: name, value: value})
		return nil
	}
}

// WithPollInterval sets how often http(s) inputs are polled.
//
// Defaults to 5 seconds. Returns an error if the duration is zero or
// negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithHTTPTimeout sets the per-request timeout of http(s) inputs.
//
// Defaults to 5 seconds. Returns an error if the duration is zero or
// negative.
func WithHTTPTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("http timeout must be positive")
		}
		cfg.httpTimeout = d
		return nil
	}
}

// WithRecorder writes every channel update shown on the board to w as a
// CBOR stream. Read it back with the history command.
func WithRecorder(w io.Writer) Option {
	return func(cfg *config) error {
		if w == nil {
			return errors.New("recorder cannot be nil")
		}
		cfg.recorder = w
		return nil
	}
}

// WithUpdateCallback registers a function called with every channel update
// the board receives, after the dashboard store has been updated.
//
// Can be called multiple times; callbacks run in registration order on the
// registry's dispatcher, so a slow callback delays later notifications. A
// panicking callback is logged and does not affect the board. A nil
// callback is ignored.
func WithUpdateCallback(fn func(ChannelUpdate)) Option {
	return func(cfg *config) error {
		if fn != nil {
			cfg.callbacks = append(cfg.callbacks, fn)
		}
		return nil
	}
}

func buildConfig(opts []Option) (*config, error) {
	cfg := &config{
		port: defaultPort,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg, nil
}
