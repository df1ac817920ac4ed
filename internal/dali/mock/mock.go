// Package mock provides a DALI driver without hardware.
//
// The driver writes the serial command line of every transmitted frame to an
// io.Writer and keeps a copy for inspection. It has no receive goroutine:
// Receive reports dali.ErrReceiveNotRunning and QueryReply always answers
// with a StatusTimeout frame.
package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/serial"
)

var _ dali.Driver = (*Driver)(nil)

// Driver is a hardware-free dali.Driver.
type Driver struct {
	out io.Writer

	mu       sync.Mutex
	commands []string
	closed   bool
}

// New returns a mock driver printing commands to out. A nil out discards them.
func New(out io.Writer) *Driver {
	if out == nil {
		out = io.Discard
	}
	return &Driver{out: out}
}

// Transmit records and prints the send command for frame. block is ignored.
func (d *Driver) Transmit(_ context.Context, frame dali.Frame, _ bool) error {
	return d.record(serial.BuildCommand(frame, false))
}

// QueryReply records the query command and returns a StatusTimeout frame.
func (d *Driver) QueryReply(_ context.Context, request dali.Frame) (dali.Frame, error) {
	if err := d.record(serial.BuildCommand(request, true)); err != nil {
		return dali.Frame{}, err
	}
	return dali.TimeoutFrame("mock interface, no reply"), nil
}

// Receive always fails: the mock has no receive goroutine.
func (d *Driver) Receive(time.Duration) (dali.Frame, error) {
	return dali.Frame{}, dali.ErrReceiveNotRunning
}

// Flush is a no-op.
func (d *Driver) Flush() int { return 0 }

// Stats returns empty statistics.
func (d *Driver) Stats() dali.EngineStats { return dali.EngineStats{} }

// Close marks the driver closed. Safe to call multiple times.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Commands returns the command lines written so far, without the trailing
// carriage return.
func (d *Driver) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *Driver) record(cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return dali.ErrClosed
	}
	line := strings.TrimSuffix(cmd, "\r")
	d.commands = append(d.commands, line)
	_, err := fmt.Fprintln(d.out, line)
	return err
}
