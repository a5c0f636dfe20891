package record

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// Record is one update of a channel.
type Record struct {
	At        time.Time `cbor:"1,keyasint"`
	Channel   string    `cbor:"2,keyasint"`
	Connected bool      `cbor:"3,keyasint"`

	// Value is nil when the update carried no value. Arrays decode as
	// []any.
	Value any `cbor:"4,keyasint,omitempty"`
}

// Encode returns the CBOR encoding of rec.
func Encode(rec Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

// Decode parses a single CBOR-encoded record.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Writer appends records to an underlying stream.
// It is safe for concurrent use from multiple goroutines.
type Writer struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
}

// NewWriter creates a Writer that encodes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{encoder: encMode.NewEncoder(w)}
}

// Write appends rec to the stream.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.encoder.Encode(rec); err != nil {
		return fmt.Errorf("encode record for %s: %w", rec.Channel, err)
	}
	return nil
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	// Channel matches records of this channel only.
	Channel string

	// Since matches records at or after this time.
	Since time.Time

	// Until matches records before this time.
	Until time.Time
}

func (f Filter) matches(rec Record) bool {
	if f.Channel != "" && rec.Channel != f.Channel {
		return false
	}
	if !f.Since.IsZero() && rec.At.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.At.Before(f.Until) {
		return false
	}
	return true
}

// Reader iterates the records of a stream written by [Writer].
type Reader struct {
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader returning the records of r that match filter.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: decMode.NewDecoder(r),
		filter:  filter,
	}
}

// Next returns the next matching record, or io.EOF at the end of the
// stream.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("decode record: %w", err)
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// ReadAll returns every remaining matching record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
