package capture

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// Writer appends records to a capture file.
// It is safe for concurrent use from multiple goroutines.
type Writer struct {
	out     io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

// Create opens path for appending, creating it with permissions 0644 if it
// does not exist.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// NewWriter writes records to out. Close does not close out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		out:     out,
		encoder: newEncoder(out),
		now:     time.Now,
	}
}

// Record appends one frame. After Close it does nothing.
func (w *Writer) Record(dir Direction, f dali.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.encoder.Encode(NewRecord(w.now(), dir, f))
}

// Close closes the underlying file if Create opened it.
// It is safe to call Close multiple times.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
