package pulsecalc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jpalmerr/pulsecalc/internal/calc"
	"github.com/jpalmerr/pulsecalc/internal/metrics"
)

// Connection is the shared state of one named calculation: its worker and
// the listeners attached to it.
//
// Worker updates are forwarded to the [Dispatcher] in order and fanned out
// there to every listener. The listener list is only touched from the
// dispatcher, so listeners see a consistent sequence of notifications.
type Connection struct {
	name       string
	dispatcher Dispatcher
	open       calc.Opener
	logger     *slog.Logger

	mu          sync.Mutex
	address     Address
	configured  bool
	configuring bool
	worker      *calc.Worker
	pumpDone    chan struct{}
	connected   bool
	value       any
	closed      bool
	closeOnce   sync.Once

	// dispatcher-owned
	listeners []attachedListener
}

type attachedListener struct {
	id string
	l  Listener
}

func newConnection(name string, dispatcher Dispatcher, open calc.Opener, logger *slog.Logger) *Connection {
	return &Connection{
		name:       name,
		dispatcher: dispatcher,
		open:       open,
		logger:     logger.With("calc", name),
	}
}

// Name returns the calculation name.
func (c *Connection) Name() string {
	return c.name
}

// Address returns the address that configured the calculation, or the zero
// Address while it is still waiting for one.
func (c *Connection) Address() Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Configured reports whether a worker has been built for the calculation.
func (c *Connection) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}

// Connected returns the last aggregate connection state delivered.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Value returns the last computed value delivered, if any.
func (c *Connection) Value() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.value != nil
}

// configure builds and starts the worker when addr carries configuration
// and the calculation has none yet. Later configurations are ignored.
//
// The connection lock is released while the worker opens its inputs, since
// a nested calc input re-enters the registry.
func (c *Connection) configure(ctx context.Context, addr Address) error {
	if addr.ListenerOnly() {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.configured || c.configuring {
		c.mu.Unlock()
		c.logger.Debug("calc connection already configured")
		return nil
	}
	c.configuring = true
	c.mu.Unlock()

	w, err := calc.New(addr.config(), c.open, c.logger)

	c.mu.Lock()
	c.configuring = false
	if err != nil {
		c.mu.Unlock()
		return &ConfigurationError{Address: addr.Raw(), Reason: err.Error()}
	}
	if c.closed {
		c.mu.Unlock()
		w.Stop()
		return ErrClosed
	}
	c.configured = true
	c.address = addr
	c.worker = w
	c.pumpDone = make(chan struct{})
	done := c.pumpDone
	c.mu.Unlock()

	go c.pump(w, done)
	w.Start(ctx)
	c.logger.Debug("calc connection configured", "expression", addr.Expression)
	return nil
}

// pump hands every worker update to the dispatcher until the worker closes
// its update channel.
func (c *Connection) pump(w *calc.Worker, done chan struct{}) {
	defer close(done)
	for u := range w.Updates() {
		c.dispatcher.Post(func() { c.deliver(u) })
	}
}

// deliver runs on the dispatcher.
func (c *Connection) deliver(u calc.Update) {
	hasValue := u.HasValue && u.Value != nil

	c.mu.Lock()
	c.connected = u.Connected
	if hasValue {
		c.value = u.Value
	}
	c.mu.Unlock()

	for _, al := range c.listeners {
		c.notify(al, u.Connected, u.Value, hasValue)
	}
	metrics.Notifications.WithLabelValues(c.name).Inc()
}

// addListener attaches l under id and broadcasts the current state to it.
func (c *Connection) addListener(id string, l Listener) {
	c.dispatcher.Post(func() {
		c.listeners = append(c.listeners, attachedListener{id: id, l: l})

		c.mu.Lock()
		connected, value := c.connected, c.value
		c.mu.Unlock()

		al := attachedListener{id: id, l: l}
		if l.OnWriteAccess != nil {
			c.invokeSafe(al, "write_access", func() { l.OnWriteAccess(false) })
		}
		c.notify(al, connected, value, value != nil)
	})
}

// removeListener detaches the listener registered under id.
func (c *Connection) removeListener(id string) {
	c.dispatcher.Post(func() {
		for i, al := range c.listeners {
			if al.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	})
}

func (c *Connection) notify(al attachedListener, connected bool, value any, hasValue bool) {
	if al.l.OnConnection != nil {
		c.invokeSafe(al, "connection", func() { al.l.OnConnection(connected) })
	}
	if hasValue && al.l.OnValue != nil {
		c.invokeSafe(al, "value", func() { al.l.OnValue(value) })
	}
}

// invokeSafe calls a listener callback with panic recovery.
// Panics are logged but do not propagate.
func (c *Connection) invokeSafe(al attachedListener, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener callback panicked",
				"panic", r,
				"listener", al.id,
				"notification", kind,
			)
		}
	}()
	fn()
}

// Close stops the worker and waits until its remaining updates have been
// handed to the dispatcher. Safe to call multiple times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		w, done := c.worker, c.pumpDone
		c.mu.Unlock()

		if w == nil {
			return
		}
		w.Stop()
		<-done
		c.logger.Debug("calc connection closed")
	})
}
