package dali

import (
	"fmt"
	"strings"
)

// Status classifies a bus event.
type Status int

// Status values. The order matches the numbering used by the bus interface
// firmware tools and must not change.
const (
	// StatusOK is a non-frame acknowledgement.
	StatusOK Status = iota
	// StatusLoopback is the interface echoing a command it has just sent.
	StatusLoopback
	// StatusFrame is a frame received from the bus.
	StatusFrame
	// StatusTimeout means nothing arrived within the requested wait.
	StatusTimeout
	// StatusTiming reports a bit timing violation or a collision.
	StatusTiming
	// StatusInterface reports a rejection by the interface itself.
	StatusInterface
	// StatusFailure reports a bus failure (e.g. no bus power).
	StatusFailure
	// StatusRecover reports the bus recovering from a failure.
	StatusRecover
	// StatusGeneral is any other error, including undecodable input.
	StatusGeneral
	// StatusUndefined is a status code the interface documents no meaning for.
	StatusUndefined
)

var statusNames = [...]string{
	StatusOK:        "OK",
	StatusLoopback:  "LOOPBACK",
	StatusFrame:     "FRAME",
	StatusTimeout:   "TIMEOUT",
	StatusTiming:    "TIMING",
	StatusInterface: "INTERFACE",
	StatusFailure:   "FAILURE",
	StatusRecover:   "RECOVER",
	StatusGeneral:   "GENERAL",
	StatusUndefined: "UNDEFINED",
}

// String returns the upper-case status name.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// IsError reports whether the status describes a transport or link error.
func (s Status) IsError() bool {
	switch s {
	case StatusOK, StatusLoopback, StatusFrame, StatusTimeout, StatusRecover:
		return false
	default:
		return true
	}
}

// ParseStatus is the inverse of Status.String. Matching is case-insensitive.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return Status(i), nil
		}
	}
	return StatusUndefined, fmt.Errorf("dali: unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler so statuses read well in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
