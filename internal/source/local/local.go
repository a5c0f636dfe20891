// Package local provides in-process variables addressed as loc://<name>.
//
// A [Hub] holds named values. Channels opened on the hub report connected as
// soon as they connect and receive every subsequent [Hub.Set] for their name.
// Local variables let operators and tests drive calculations without an
// external data source.
package local

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Scheme is the address scheme served by a [Hub].
const Scheme = "loc"

// Hub stores local variables and fans updates out to open channels.
//
// Hub is safe for concurrent use. Callbacks are invoked without the hub lock
// held. Stores and deliveries for one name are serialized, so every channel
// sees the values of that name in the order they were stored and the last
// value delivered is the hub's current value. Callbacks must not call
// [Hub.Set] for the name they are delivering.
type Hub struct {
	mu     sync.Mutex
	values map[string]any
	subs   map[string]map[*Channel]struct{}
	order  map[string]*sync.Mutex
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{
		values: make(map[string]any),
		subs:   make(map[string]map[*Channel]struct{}),
		order:  make(map[string]*sync.Mutex),
	}
}

// nameLock returns the mutex serializing stores and deliveries of name.
func (h *Hub) nameLock(name string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.order[name]
	if !ok {
		l = &sync.Mutex{}
		h.order[name] = l
	}
	return l
}

// Channel is a subscription to one local variable.
type Channel struct {
	hub          *Hub
	name         string
	onConnection func(bool)
	onValue      func(any)

	mu        sync.Mutex
	connected bool
}

// ParseAddress splits loc://name?init=value into its name and optional
// initial value. Numeric initial values are parsed as float64.
func ParseAddress(address string) (name string, init any, err error) {
	rest, ok := strings.CutPrefix(address, Scheme+"://")
	if !ok {
		return "", nil, fmt.Errorf("local address must start with %s://, got %q", Scheme, address)
	}

	name, query, _ := strings.Cut(rest, "?")
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return "", nil, fmt.Errorf("local address %q has no name", address)
	}

	if query == "" {
		return name, nil, nil
	}
	params, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, fmt.Errorf("local address %q: %w", address, err)
	}
	if raw := params.Get("init"); raw != "" {
		init = ParseValue(raw)
	}
	return name, init, nil
}

// ParseValue interprets text as a float64 when it is numeric, a bool when it
// is "true" or "false", and otherwise keeps it as a string.
func ParseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	return raw
}

// Open returns a channel for address. The callbacks fire once the channel is
// connected. An init value in the address seeds the variable when it has no
// value yet.
func (h *Hub) Open(address string, onConnection func(bool), onValue func(any)) (*Channel, error) {
	name, init, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	if init != nil {
		h.mu.Lock()
		if _, exists := h.values[name]; !exists {
			h.values[name] = init
		}
		h.mu.Unlock()
	}

	return &Channel{
		hub:          h,
		name:         name,
		onConnection: onConnection,
		onValue:      onValue,
	}, nil
}

// Set stores value under name and delivers it to every connected channel.
func (h *Hub) Set(name string, value any) {
	l := h.nameLock(name)
	l.Lock()
	defer l.Unlock()

	h.mu.Lock()
	h.values[name] = value
	targets := make([]*Channel, 0, len(h.subs[name]))
	for ch := range h.subs[name] {
		targets = append(targets, ch)
	}
	h.mu.Unlock()

	for _, ch := range targets {
		ch.deliver(value)
	}
}

// Get returns the current value of name.
func (h *Hub) Get(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[name]
	return v, ok
}

// Names returns the names of all variables that hold a value.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.values))
	for n := range h.values {
		names = append(names, n)
	}
	return names
}

// Connect registers the channel, reports it connected and delivers the
// current value when there is one.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = true
	c.mu.Unlock()

	h := c.hub
	l := h.nameLock(c.name)
	l.Lock()
	defer l.Unlock()

	h.mu.Lock()
	if h.subs[c.name] == nil {
		h.subs[c.name] = make(map[*Channel]struct{})
	}
	h.subs[c.name][c] = struct{}{}
	value, hasValue := h.values[c.name]
	h.mu.Unlock()

	if c.onConnection != nil {
		c.onConnection(true)
	}
	if hasValue {
		c.deliver(value)
	}
	return nil
}

// Disconnect unregisters the channel. Safe to call multiple times or before
// Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	h := c.hub
	h.mu.Lock()
	delete(h.subs[c.name], c)
	if len(h.subs[c.name]) == 0 {
		delete(h.subs, c.name)
	}
	h.mu.Unlock()
}

func (c *Channel) deliver(value any) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if connected && c.onValue != nil {
		c.onValue(value)
	}
}
