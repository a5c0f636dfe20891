package pulsecalc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecalc/internal/calc"
	"github.com/jpalmerr/pulsecalc/internal/poller"
	"github.com/jpalmerr/pulsecalc/internal/source/local"
)

// Registry owns every active calculation, keyed by name.
//
// The first [Registry.Connect] for a name creates its [Connection]; later
// connects with the same name attach to it, and the last
// [Attachment.Close] destroys it. Inputs are opened through the source
// registered for their address scheme: loc, http, https and calc are built
// in.
//
// Registry is safe for concurrent use.
type Registry struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	hub        *local.Hub
	http       *poller.Source
	sources    map[string]SourceFunc
	ctx        context.Context
	cancel     context.CancelFunc
	loopDone   chan struct{}

	mu     sync.Mutex
	conns  map[string]*registryEntry
	closed bool
}

type registryEntry struct {
	conn *Connection
	refs int
}

// NewRegistry creates a [Registry].
//
// Unless [WithDispatcher] is given, the registry runs its own [EventLoop]
// until [Registry.Close].
func NewRegistry(opts ...Option) (*Registry, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	return newRegistry(cfg), nil
}

func newRegistry(cfg *config) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	var pollOpts []poller.SourceOption
	if cfg.pollInterval > 0 {
		pollOpts = append(pollOpts, poller.WithInterval(cfg.pollInterval))
	}
	if cfg.httpTimeout > 0 {
		pollOpts = append(pollOpts, poller.WithTimeout(cfg.httpTimeout))
	}

	r := &Registry{
		logger:     cfg.logger,
		dispatcher: cfg.dispatcher,
		hub:        local.NewHub(),
		http:       poller.NewSource(cfg.logger, pollOpts...),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[string]*registryEntry),
	}

	r.sources = map[string]SourceFunc{
		local.Scheme: r.openLocal,
		"http":       r.openHTTP,
		"https":      r.openHTTP,
	}
	for scheme, fn := range cfg.sources {
		r.sources[scheme] = fn
	}

	for _, lv := range cfg.locals {
		r.hub.Set(lv.name, lv.value)
	}

	if r.dispatcher == nil {
		loop := NewEventLoop(cfg.logger)
		r.dispatcher = loop
		r.loopDone = make(chan struct{})
		go func() {
			defer close(r.loopDone)
			_ = loop.Run(ctx)
		}()
	}

	return r
}

// Attachment is one listener's hold on a calculation. Close it to detach.
type Attachment struct {
	id       string
	name     string
	registry *Registry
	conn     *Connection
	once     sync.Once
}

// ID returns the unique identifier of the attachment.
func (a *Attachment) ID() string {
	return a.id
}

// Name returns the calculation name.
func (a *Attachment) Name() string {
	return a.name
}

// Connection returns the shared connection the listener is attached to.
func (a *Attachment) Connection() *Connection {
	return a.conn
}

// Close detaches the listener. Closing the last attachment of a
// calculation stops it. Safe to call multiple times.
func (a *Attachment) Close() {
	a.once.Do(func() {
		a.conn.removeListener(a.id)
		a.registry.release(a.name, a.conn)
	})
}

// Connect attaches l to the calculation named by address.
//
// If address carries configuration and the calculation has none yet, its
// worker is built and started. A listener-only address attaches to the
// named calculation and waits for another address to configure it.
//
// The listener immediately receives the current state: write access false,
// the connection state and the last value if there is one.
//
// Returns a [*ConfigurationError] if the address is malformed or one of its
// inputs cannot be opened, and [ErrClosed] after [Registry.Close].
func (r *Registry) Connect(address string, l Listener) (*Attachment, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	entry, ok := r.conns[addr.Name]
	if !ok {
		entry = &registryEntry{conn: newConnection(addr.Name, r.dispatcher, r.open, r.logger)}
		r.conns[addr.Name] = entry
		r.logger.Debug("calc connection created", "calc", addr.Name)
	}
	entry.refs++
	conn := entry.conn
	r.mu.Unlock()

	// configuring opens inputs, which may re-enter Connect for nested calcs
	if err := conn.configure(r.ctx, addr); err != nil {
		r.release(addr.Name, conn)
		return nil, err
	}

	att := &Attachment{
		id:       uuid.NewString(),
		name:     addr.Name,
		registry: r,
		conn:     conn,
	}
	conn.addListener(att.id, l)
	return att, nil
}

// release drops one reference to the named connection and closes it when
// none remain.
func (r *Registry) release(name string, conn *Connection) {
	r.mu.Lock()
	entry, ok := r.conns[name]
	if !ok || entry.conn != conn {
		r.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.conns, name)
	r.mu.Unlock()

	conn.Close()
	r.logger.Debug("calc connection destroyed", "calc", name)
}

// Lookup returns the active connection for name.
func (r *Registry) Lookup(name string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[name]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// Names returns the names of all active calculations in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.conns))
	for n := range r.conns {
		names = append(names, n)
	}
	r.mu.Unlock()

	slices.Sort(names)
	return names
}

// SetLocal writes the local variable loc://name. Every calculation
// subscribed to it sees the new value.
func (r *Registry) SetLocal(name string, value any) {
	r.hub.Set(name, value)
}

// Local returns the current value of the local variable loc://name.
func (r *Registry) Local(name string) (any, bool) {
	return r.hub.Get(name)
}

// Close stops every calculation and releases the built-in sources.
// Connect fails with [ErrClosed] afterwards. Safe to call multiple times.
//
// When the registry runs its own event loop, notifications already queued
// are delivered before Close returns. Close must not be called from a
// listener callback.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, entry := range r.conns {
		conns = append(conns, entry.conn)
	}
	r.conns = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	r.http.Close()

	if r.loopDone != nil {
		drained := make(chan struct{})
		r.dispatcher.Post(func() { close(drained) })
		select {
		case <-drained:
		case <-r.loopDone:
		}
	}
	r.cancel()
	if r.loopDone != nil {
		<-r.loopDone
	}
}

// open resolves an input address to a channel through the source of its
// scheme. Nested calc addresses attach through the registry itself.
func (r *Registry) open(address string, onConnection func(bool), onValue func(any)) (calc.Channel, error) {
	scheme, _, ok := strings.Cut(address, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("address %q has no scheme", address)
	}
	if scheme == Scheme {
		return r.openCalc(address, onConnection, onValue)
	}
	src, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("no source for scheme %q", scheme)
	}
	return src(address, onConnection, onValue)
}

func (r *Registry) openLocal(address string, onConnection func(bool), onValue func(any)) (Channel, error) {
	ch, err := r.hub.Open(address, onConnection, onValue)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *Registry) openHTTP(address string, onConnection func(bool), onValue func(any)) (Channel, error) {
	ch, err := r.http.Open(address, onConnection, onValue)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *Registry) openCalc(address string, onConnection func(bool), onValue func(any)) (Channel, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}
	return &calcChannel{
		registry: r,
		address:  address,
		listener: Listener{OnConnection: onConnection, OnValue: onValue},
	}, nil
}

// calcChannel feeds one calculation into another.
type calcChannel struct {
	registry *Registry
	address  string
	listener Listener

	mu           sync.Mutex
	attachment   *Attachment
	disconnected bool
}

func (c *calcChannel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachment != nil || c.disconnected {
		return nil
	}
	att, err := c.registry.Connect(c.address, c.listener)
	if err != nil {
		return err
	}
	c.attachment = att
	return nil
}

func (c *calcChannel) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	att := c.attachment
	c.attachment = nil
	c.mu.Unlock()

	if att != nil {
		att.Close()
	}
}
