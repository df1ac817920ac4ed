package dali

import "errors"

// Domain errors for the DALI core.
var (
	// ErrReceiveNotRunning is returned when an operation needs the background
	// receive goroutine but it is not running.
	ErrReceiveNotRunning = errors.New("dali: receive is not running")

	// ErrTransportFailed marks a fatal transport error (device unplugged,
	// port closed). It stops the receive goroutine.
	ErrTransportFailed = errors.New("dali: transport failed")

	// ErrMalformedReport is returned when raw transport data cannot be decoded.
	ErrMalformedReport = errors.New("dali: malformed report")

	// ErrInvalidFrame is returned when a frame's data does not fit its length.
	ErrInvalidFrame = errors.New("dali: invalid frame")

	// ErrClosed is returned when a driver is used after Close.
	ErrClosed = errors.New("dali: driver closed")
)
