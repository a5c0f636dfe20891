// Package calc implements the calculation worker behind a calc:// channel.
//
// A [Worker] subscribes to every input channel of one calculation, keeps the
// last value and connection state of each, and re-evaluates the expression
// on its own goroutine whenever a qualifying value arrives. Results leave the
// worker through [Worker.Updates], an ordered channel consumed by the
// connection adapter.
//
// Recompute requests are coalesced: any number of triggers that arrive while
// the worker is busy collapse into one recompute over the latest values.
//
// This package is internal to pulsecalc. Consumers attach to calculations
// through the pulsecalc Registry.
package calc
