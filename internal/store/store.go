package store

import "time"

// ChannelValue is the latest state of one calc channel.
//
// ChannelValue is the storage representation used by the REST API and SSE,
// decoupled from the engine types so both can evolve independently.
type ChannelValue struct {
	// Name is the calculation name.
	Name string `json:"name"`

	// Address is the calc address that configured the channel.
	Address string `json:"address"`

	// Expression is the expression being evaluated.
	Expression string `json:"expression"`

	// Connected is the aggregate connection state of the channel's inputs.
	Connected bool `json:"connected"`

	// Value is the last computed value. nil until the first evaluation.
	Value any `json:"value"`

	// UpdatedAt is when the channel last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to channel values.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a channel value and notifies all subscribers.
	// Values are keyed by Name, so subsequent updates replace previous ones.
	Update(value ChannelValue)

	// Get returns the stored value for name.
	Get(name string) (ChannelValue, bool)

	// GetAll returns all stored values ordered by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []ChannelValue

	// Subscribe returns a channel that receives updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan ChannelValue

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan ChannelValue)
}
