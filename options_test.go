package pulsecalc

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"
)

const sumAddress = "calc://sum?a=loc://a&b=loc://b&expr=a+b"

func TestNew_Valid(t *testing.T) {
	board, err := New(WithChannel(sumAddress))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(board.Channels()) != 1 {
		t.Errorf("len(Channels()) = %v, want %v", len(board.Channels()), 1)
	}
	if board.Channels()[0].Name != "sum" {
		t.Errorf("Channels()[0].Name = %q, want %q", board.Channels()[0].Name, "sum")
	}
}

func TestNew_NoChannels(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Error("New() without channels should return error")
	}
}

func TestNew_MalformedChannel(t *testing.T) {
	_, err := New(WithChannel("calc://bad?a=loc://a"))
	if err == nil {
		t.Fatal("New() with malformed channel should return error")
	}

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %T, want *ConfigurationError", err)
	}
}

func TestNew_DuplicateChannelNames(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"WithChannel twice", []Option{WithChannel(sumAddress), WithChannel("calc://sum?a=loc://a&expr=a")}},
		{"WithChannels", []Option{WithChannels(sumAddress, "calc://other?x=loc://x&expr=x", sumAddress)}},
		{"listener only duplicate", []Option{WithChannel(sumAddress), WithChannel("calc://sum")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if err == nil {
				t.Error("New() with duplicate channel names should return error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	board, err := New(WithChannel(sumAddress))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.Port() != defaultPort {
		t.Errorf("Port() = %v, want %v", board.Port(), defaultPort)
	}
	if board.Title() != "" {
		t.Errorf("Title() = %q, want empty", board.Title())
	}
}

func TestWithChannels(t *testing.T) {
	board, err := New(WithChannels(sumAddress, "calc://diff?a=loc://a&b=loc://b&expr=a-b"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(board.Channels()) != 2 {
		t.Errorf("len(Channels()) = %v, want %v", len(board.Channels()), 2)
	}
}

func TestChannels_Immutability(t *testing.T) {
	board, _ := New(WithChannel(sumAddress))

	channels := board.Channels()
	channels[0].Name = "modified"

	if board.Channels()[0].Name != "sum" {
		t.Error("Channels() should return a copy")
	}
}

func TestWithPort(t *testing.T) {
	board, err := New(WithChannel(sumAddress), WithPort(9090))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.Port() != 9090 {
		t.Errorf("Port() = %v, want %v", board.Port(), 9090)
	}
}

func TestWithPort_Invalid(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero", 0},
		{"negative", -1},
		{"too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithChannel(sumAddress), WithPort(tt.port))
			if err == nil {
				t.Errorf("WithPort(%d) should return error", tt.port)
			}
		})
	}
}

func TestWithTitle(t *testing.T) {
	board, err := New(WithChannel(sumAddress), WithTitle("Beamline Calculations"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.Title() != "Beamline Calculations" {
		t.Errorf("Title() = %q, want %q", board.Title(), "Beamline Calculations")
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	board, err := New(WithChannel(sumAddress), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.logger != logger {
		t.Error("WithLogger() did not set logger")
	}
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := New(WithChannel(sumAddress), WithLogger(nil))
	if err == nil {
		t.Error("WithLogger(nil) should return error")
	}
}

func TestWithLogger_DefaultsToSlogDefault(t *testing.T) {
	board, err := New(WithChannel(sumAddress))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
}

func TestWithSource_Invalid(t *testing.T) {
	noop := func(string, func(bool), func(any)) (Channel, error) { return nil, nil }

	tests := []struct {
		name   string
		scheme string
		fn     SourceFunc
	}{
		{"empty scheme", "", noop},
		{"reserved scheme", Scheme, noop},
		{"nil func", "sim", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(WithSource(tt.scheme, tt.fn))
			if err == nil {
				t.Error("WithSource() should return error")
			}
		})
	}
}

func TestOptions_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty local name", WithLocal("", 1.0)},
		{"zero poll interval", WithPollInterval(0)},
		{"negative poll interval", WithPollInterval(-time.Second)},
		{"zero http timeout", WithHTTPTimeout(0)},
		{"nil dispatcher", WithDispatcher(nil)},
		{"nil recorder", WithRecorder(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.opt); err == nil {
				t.Error("option should return error")
			}
		})
	}
}

func TestWithPollInterval(t *testing.T) {
	cfg, err := buildConfig([]Option{WithPollInterval(250 * time.Millisecond), WithHTTPTimeout(time.Second)})
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}

	if cfg.pollInterval != 250*time.Millisecond {
		t.Errorf("pollInterval = %v, want %v", cfg.pollInterval, 250*time.Millisecond)
	}
	if cfg.httpTimeout != time.Second {
		t.Errorf("httpTimeout = %v, want %v", cfg.httpTimeout, time.Second)
	}
}

func TestWithUpdateCallback_NilIsIgnored(t *testing.T) {
	cfg, err := buildConfig([]Option{WithUpdateCallback(nil)})
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if len(cfg.callbacks) != 0 {
		t.Errorf("len(callbacks) = %d, want 0", len(cfg.callbacks))
	}
}
