package usb

import "errors"

// Domain errors for the USB transport.
var (
	// ErrReadTimeout is returned by an Endpoint when no report arrived in time.
	ErrReadTimeout = errors.New("dali/usb: read timeout")

	// ErrUnsupportedLength is returned when a frame length has no USB write type.
	ErrUnsupportedLength = errors.New("dali/usb: unsupported frame length")

	// ErrShortWrite is returned when fewer than 64 bytes reached the device.
	ErrShortWrite = errors.New("dali/usb: short write")

	// ErrPowerUnsupported is returned by Power on interfaces without an
	// integrated bus power supply.
	ErrPowerUnsupported = errors.New("dali/usb: interface has no power supply")

	// ErrDeviceNotFound is returned when no matching interface is attached.
	ErrDeviceNotFound = errors.New("dali/usb: interface not found")
)
