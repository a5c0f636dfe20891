// Package poller provides HTTP-polled input channels for calculations.
//
// An address such as "https://host/status#beam.current" is polled at a fixed
// interval. The channel is connected while requests succeed with a 2xx
// status, and its value is the JSON field selected by the fragment (or the
// raw body text when there is no fragment).
//
// The main components are:
//
//   - [Client]: pooled HTTP client with per-request timeouts and size limits
//   - [Source]: opens channels that share one client
//   - [Channel]: polls one URL and reports connection and value changes
//   - [Extract]: selects a value from a response body
package poller
