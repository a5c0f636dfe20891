package poller

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecalc/internal/metrics"
)

const (
	// DefaultInterval is the polling interval when none is configured.
	DefaultInterval = 5 * time.Second

	// DefaultTimeout is the per-request timeout when none is configured.
	DefaultTimeout = 5 * time.Second

	minInterval = 10 * time.Millisecond
)

// Source opens polled HTTP channels. All channels share one [Client].
type Source struct {
	client   *Client
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// SourceOption configures a [Source].
type SourceOption func(*Source)

// WithInterval sets how often each channel polls. Values below
// minInterval are raised to it.
func WithInterval(d time.Duration) SourceOption {
	return func(s *Source) {
		if d < minInterval {
			d = minInterval
		}
		s.interval = d
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) SourceOption {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSource creates a [Source]. A nil logger falls back to slog.Default().
func NewSource(logger *slog.Logger, opts ...SourceOption) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		client:   NewClient(),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases pooled connections.
func (s *Source) Close() {
	s.client.Close()
}

// ParseAddress splits an http(s) address into the request URL and the
// fragment path, e.g. "http://host/status#beam.current" yields
// "http://host/status" and ["beam", "current"].
func ParseAddress(address string) (target string, path []string, err error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, fmt.Errorf("address %q: scheme must be http or https", address)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("address %q: missing host", address)
	}

	if u.Fragment != "" {
		for _, p := range strings.Split(u.Fragment, ".") {
			if p == "" {
				return "", nil, fmt.Errorf("address %q: empty segment in path %q", address, u.Fragment)
			}
			path = append(path, p)
		}
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), path, nil
}

// Channel polls one URL and reports its connection state and value.
//
// The connection callback fires only when reachability changes; a channel is
// connected while requests complete with a 2xx status. The value callback
// fires when the extracted value differs from the last one delivered.
type Channel struct {
	source       *Source
	address      string
	url          string
	path         []string
	onConnection func(bool)
	onValue      func(any)
	logger       *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// owned by the polling goroutine
	connected    bool
	reported     bool
	last         any
	hasLastValue bool
}

// Open returns a channel for address without starting it.
func (s *Source) Open(address string, onConnection func(bool), onValue func(any)) (*Channel, error) {
	target, path, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return &Channel{
		source:       s,
		address:      address,
		url:          target,
		path:         path,
		onConnection: onConnection,
		onValue:      onValue,
		logger:       s.logger.With("address", address),
	}, nil
}

// Connect starts polling: once immediately, then every interval. It returns
// without waiting for the first response. Connect is a no-op if the channel
// is already polling or was disconnected.
func (c *Channel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return nil
	}
	c.started = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

// Disconnect stops polling and waits for an in-flight request to finish.
// Safe to call multiple times and before Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Channel) loop(ctx context.Context) {
	defer c.wg.Done()

	c.poll(ctx)

	ticker := time.NewTicker(c.source.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Channel) poll(ctx context.Context) {
	resp := c.source.client.Fetch(ctx, c.url, c.source.timeout)
	if ctx.Err() != nil {
		return
	}

	ok := resp.OK()
	if ok {
		metrics.SourcePolls.WithLabelValues(metrics.ResultOK).Inc()
	} else {
		metrics.SourcePolls.WithLabelValues(metrics.ResultError).Inc()
		c.logger.Debug("poll failed", "status_code", resp.StatusCode, "error", resp.Error)
	}
	c.setConnected(ok)
	if !ok {
		return
	}

	value, err := c.safeExtract(resp.Body)
	if err != nil {
		c.logger.Warn("value extraction failed", "error", err)
		return
	}
	if c.hasLastValue && reflect.DeepEqual(c.last, value) {
		return
	}
	c.last = value
	c.hasLastValue = true
	if c.onValue != nil {
		c.onValue(value)
	}
}

func (c *Channel) setConnected(connected bool) {
	if c.reported && c.connected == connected {
		return
	}
	c.connected = connected
	c.reported = true
	if c.onConnection != nil {
		c.onConnection(connected)
	}
}

// safeExtract runs Extract with panic recovery.
// A panic is logged with a correlation ID and reported as an error.
func (c *Channel) safeExtract(body []byte) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("extractor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			value = nil
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()
	return Extract(body, c.path)
}
