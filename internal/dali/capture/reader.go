package capture

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// Filter selects records. Nil fields match everything.
type Filter struct {
	Direction *Direction
	Status    *dali.Status

	// TimeStart matches records at or after this time.
	TimeStart *time.Time

	// TimeEnd matches records before this time.
	TimeEnd *time.Time
}

func (f *Filter) matches(r Record) bool {
	if f.Direction != nil && r.Direction != *f.Direction {
		return false
	}
	if f.Status != nil && dali.Status(r.Status) != *f.Status {
		return false
	}
	if f.TimeStart != nil && r.Time.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !r.Time.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams records from a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// Open reads the capture file at path.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f, filter)
	r.closer = f
	return r, nil
}

// NewReader reads records from in.
func NewReader(in io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: newDecoder(in),
		filter:  filter,
	}
}

// Next returns the next matching record, or io.EOF at the end.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// Close closes the file if Open opened it.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
