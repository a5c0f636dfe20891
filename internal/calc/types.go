package calc

import "fmt"

// State is the lifecycle state of a [Worker].
type State int32

const (
	// StateIdle means the worker is waiting for a trigger.
	StateIdle State = iota

	// StateEvaluating means the worker is running the expression.
	StateEvaluating

	// StateStopped means the worker has terminated and released its inputs.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Channel is an input the worker subscribes to.
//
// Connect may invoke the callbacks given to the [Opener] synchronously.
// Disconnect must be safe to call on a channel that never connected.
type Channel interface {
	Connect() error
	Disconnect()
}

// Opener creates the input channel for address, wiring its connection and
// value callbacks. Callbacks may run on any goroutine.
type Opener func(address string, onConnection func(connected bool), onValue func(value any)) (Channel, error)

// Subscription binds an expression variable to an input address.
type Subscription struct {
	// Name is the variable name used inside the expression.
	Name string

	// Address identifies the underlying data source.
	Address string
}

// Config describes one calculation.
type Config struct {
	// Name identifies the calculation in logs and metrics.
	Name string

	// Expression is evaluated with each subscription bound by name.
	Expression string

	// Subscriptions are the inputs of the calculation.
	Subscriptions []Subscription

	// Update restricts which variables trigger a recompute. nil means every
	// variable does.
	Update []string
}

// Update is a notification from a worker to its adapter.
type Update struct {
	// Connected is the aggregate connection state of all inputs.
	Connected bool

	// Value is the last computed value. Only meaningful when HasValue is set.
	Value any

	// HasValue reports whether the worker has computed a value yet.
	HasValue bool
}
