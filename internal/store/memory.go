package store

import (
	"slices"
	"strings"
	"sync"
)

// subscriberBuffer is the capacity of each subscriber channel.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Values are keyed by channel name, with new values replacing previous ones.
// Subscribers receive updates via buffered channels. Updates are sent
// non-blocking; if a subscriber's buffer is full, the update is dropped for
// that subscriber so a slow dashboard never stalls the event loop.
type MemoryStore struct {
	mu          sync.RWMutex
	values      map[string]ChannelValue
	subscribers map[chan ChannelValue]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:      make(map[string]ChannelValue),
		subscribers: make(map[chan ChannelValue]struct{}),
	}
}

// Update stores a [ChannelValue] and notifies all subscribers.
func (m *MemoryStore) Update(value ChannelValue) {
	m.mu.Lock()
	m.values[value.Name] = value
	m.mu.Unlock()

	m.notifySubscribers(value)
}

// Get returns the stored value for name.
func (m *MemoryStore) Get(name string) (ChannelValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// GetAll returns a snapshot of all stored values ordered by name.
func (m *MemoryStore) GetAll() []ChannelValue {
	m.mu.RLock()
	values := make([]ChannelValue, 0, len(m.values))
	for _, v := range m.values {
		values = append(values, v)
	}
	m.mu.RUnlock()

	slices.SortFunc(values, func(a, b ChannelValue) int {
		return strings.Compare(a.Name, b.Name)
	})
	return values
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource
// leaks.
func (m *MemoryStore) Subscribe() <-chan ChannelValue {
	ch := make(chan ChannelValue, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan ChannelValue) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the value to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(value ChannelValue) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- value:
		default:
			// subscriber is slow, drop the message
		}
	}
}
