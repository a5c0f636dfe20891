// Package record persists channel updates as a stream of CBOR records.
//
// A [Writer] appends one self-delimiting CBOR map per update to any
// io.Writer; a [Reader] iterates them back, optionally filtered by channel
// name or time range. Records use small integer keys and RFC 3339 timestamps
// with nanosecond precision, so a recording stays compact and its bytes
// are deterministic for a given update.
package record
