package capture

import (
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// Direction tells whether a frame was sent or received.
type Direction uint8

const (
	// DirectionIn is a frame received from the bus interface.
	DirectionIn Direction = iota
	// DirectionOut is a frame sent to the bus interface.
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

// Record is one captured frame. Integer keys keep files compact.
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Timestamp float64   `cbor:"3,keyasint,omitempty"`
	Length    int       `cbor:"4,keyasint"`
	Data      uint32    `cbor:"5,keyasint"`
	Priority  int       `cbor:"6,keyasint,omitempty"`
	SendTwice bool      `cbor:"7,keyasint,omitempty"`
	Status    uint8     `cbor:"8,keyasint"`
	Message   string    `cbor:"9,keyasint,omitempty"`
}

// NewRecord captures frame at time t.
func NewRecord(t time.Time, dir Direction, f dali.Frame) Record {
	return Record{
		Time:      t,
		Direction: dir,
		Timestamp: f.Timestamp,
		Length:    f.Length,
		Data:      f.Data,
		Priority:  f.Priority,
		SendTwice: f.SendTwice,
		Status:    uint8(f.Status),
		Message:   f.Message,
	}
}

// Frame rebuilds the captured frame.
func (r Record) Frame() dali.Frame {
	return dali.Frame{
		Timestamp: r.Timestamp,
		Length:    r.Length,
		Data:      r.Data,
		Priority:  r.Priority,
		SendTwice: r.SendTwice,
		Status:    dali.Status(r.Status),
		Message:   r.Message,
	}
}
