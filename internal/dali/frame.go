package dali

import (
	"fmt"
	"time"
)

// DefaultPriority is the serial arbitration priority used when a caller does
// not pick one.
const DefaultPriority = 2

// MaxFrameLength is the longest payload, in bits, any transport reports.
const MaxFrameLength = 32

// Frame is one DALI bus event, transmitted or received.
//
// Frames are plain values: once queued they are never modified, and two
// frames are equal when all fields are equal.
type Frame struct {
	// Timestamp is the receive time in seconds since the Unix epoch.
	// Zero for frames built by a caller.
	Timestamp float64

	// Length is the payload length in bits (0 for status-only events).
	Length int

	// Data holds the payload right-justified.
	Data uint32

	// Priority is the serial arbitration priority class.
	Priority int

	// SendTwice asks the interface to repeat the forward frame.
	SendTwice bool

	// Status classifies the event.
	Status Status

	// Message is diagnostic text. Never use it for control flow.
	Message string
}

// NewFrame returns an outgoing frame with default priority and status OK.
func NewFrame(length int, data uint32) Frame {
	return Frame{
		Length:   length,
		Data:     data,
		Priority: DefaultPriority,
		Status:   StatusOK,
		Message:  "OK",
	}
}

// TimeoutFrame returns the frame handed out when nothing arrived in time.
func TimeoutFrame(message string) Frame {
	return Frame{Status: StatusTimeout, Message: message}
}

// FitsLength reports whether data can be represented in length bits.
func FitsLength(length int, data uint32) bool {
	switch {
	case length < 0 || length > MaxFrameLength:
		return false
	case length == MaxFrameLength:
		return true
	default:
		return uint64(data) < uint64(1)<<uint(length)
	}
}

// Fits reports whether the frame's data fits its declared length.
func (f Frame) Fits() bool {
	return FitsLength(f.Length, f.Data)
}

// Validate returns ErrInvalidFrame if the payload does not fit its length.
func (f Frame) Validate() error {
	if !f.Fits() {
		return fmt.Errorf("%w: data 0x%X does not fit %d bits", ErrInvalidFrame, f.Data, f.Length)
	}
	return nil
}

// Time converts Timestamp to a time.Time. Zero timestamps give the zero time.
func (f Frame) Time() time.Time {
	if f.Timestamp == 0 {
		return time.Time{}
	}
	sec := int64(f.Timestamp)
	nsec := int64((f.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// String renders the frame for logs, e.g. "FRAME 16:0x0105".
func (f Frame) String() string {
	if f.Length == 0 {
		return fmt.Sprintf("%s (%s)", f.Status, f.Message)
	}
	digits := (f.Length + 3) / 4
	twice := ""
	if f.SendTwice {
		twice = " twice"
	}
	return fmt.Sprintf("%s %d:0x%0*X%s", f.Status, f.Length, digits, f.Data, twice)
}

// Stamp returns the current wall clock as a frame timestamp.
func Stamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
