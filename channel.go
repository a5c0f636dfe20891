package pulsecalc

import (
	"github.com/jpalmerr/pulsecalc/internal/calc"
)

// Channel is an input data source. Connect starts delivery to the callbacks
// given when the channel was opened; Disconnect stops it and must be safe to
// call on a channel that never connected.
type Channel = calc.Channel

// SourceFunc opens the [Channel] for an address. The callbacks may be
// invoked from any goroutine, including synchronously from Connect.
//
// Sources are registered per address scheme with [WithSource].
type SourceFunc func(address string, onConnection func(connected bool), onValue func(value any)) (Channel, error)

// Listener receives the notifications of a calc channel. All callbacks run
// on the registry's [Dispatcher], one at a time and in emission order. Nil
// callbacks are skipped.
type Listener struct {
	// OnConnection receives the aggregate connection state of the
	// calculation's inputs.
	OnConnection func(connected bool)

	// OnValue receives each computed value.
	OnValue func(value any)

	// OnWriteAccess receives the write access of the channel. Calc channels
	// are read-only, so it is always called with false.
	OnWriteAccess func(writable bool)
}
