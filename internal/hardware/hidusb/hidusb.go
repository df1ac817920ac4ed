// Package hidusb opens DALI USB interfaces through hidapi.
//
// It adapts a github.com/sstallion/go-hid device to the usb.Endpoint
// interface of the DALI USB driver.
package hidusb

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/nerrad567/gray-logic-dali/internal/dali/usb"
)

// reportID is prepended to every output report. The interface does not use
// numbered reports, so hidapi expects a zero.
const reportID = 0x00

var (
	initOnce sync.Once
	initErr  error
)

// device is the subset of *hid.Device used here.
type device interface {
	Write(p []byte) (int, error)
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	GetProductStr() (string, error)
	Close() error
}

// Device is a claimed DALI USB interface.
type Device struct {
	dev device

	writeMu sync.Mutex
	out     [usb.ReportSize + 1]byte
}

var (
	_ usb.Endpoint         = (*Device)(nil)
	_ usb.ProductDescriber = (*Device)(nil)
)

// Open claims the first interface matching vendorID and productID.
//
// Returns:
//   - *Device: Claimed device
//   - error: usb.ErrDeviceNotFound if no interface is attached
func Open(vendorID, productID uint16) (*Device, error) {
	initOnce.Do(func() { initErr = hid.Init() })
	if initErr != nil {
		return nil, fmt.Errorf("hidapi init: %w", initErr)
	}

	dev, err := hid.OpenFirst(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("%w: %04x:%04x: %w", usb.ErrDeviceNotFound, vendorID, productID, err)
	}
	return newDevice(dev), nil
}

func newDevice(dev device) *Device {
	return &Device{dev: dev}
}

// Write sends one output report, adding the report ID hidapi requires.
// The returned count excludes the report ID.
func (d *Device) Write(report []byte) (int, error) {
	if len(report) > usb.ReportSize {
		return 0, fmt.Errorf("report of %d bytes exceeds %d", len(report), usb.ReportSize)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.out[0] = reportID
	n := copy(d.out[1:], report)
	written, err := d.dev.Write(d.out[:n+1])
	if written > 0 {
		written--
	}
	return written, err
}

// ReadReport reads one input report. Interrupted reads are retried.
func (d *Device) ReadReport(buf []byte, timeout time.Duration) (int, error) {
	for {
		n, err := d.dev.ReadWithTimeout(buf, timeout)
		switch {
		case errors.Is(err, hid.ErrTimeout):
			return 0, usb.ErrReadTimeout
		case errors.Is(err, syscall.EINTR):
			continue
		case err != nil:
			return 0, err
		case n == 0:
			return 0, usb.ErrReadTimeout
		default:
			return n, nil
		}
	}
}

// Product returns the USB product string.
func (d *Device) Product() (string, error) {
	return d.dev.GetProductStr()
}

// Close releases the device.
func (d *Device) Close() error {
	return d.dev.Close()
}
