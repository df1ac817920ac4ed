// Package serialport opens serial ports for the DALI serial driver.
//
// It adapts go.bug.st/serial to the line-oriented serial.Port interface of
// the driver: bytes are read with a deadline and assembled into lines, and a
// partial line survives a timeout until the rest of it arrives.
package serialport

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	daliserial "github.com/nerrad567/gray-logic-dali/internal/dali/serial"
)

// maxLineLength bounds a line without terminator. Longer garbage is dropped.
const maxLineLength = 1024

// rawPort is the subset of serial.Port used here.
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Port is an opened serial port delivering lines.
type Port struct {
	raw rawPort

	readMu  sync.Mutex
	pending []byte
	chunk   [256]byte
}

var _ daliserial.Port = (*Port)(nil)

// Open opens name at baud (8N1). A zero baud uses the firmware default.
func Open(name string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = daliserial.DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialport: reset %s: %w", name, err)
	}
	return newPort(p), nil
}

func newPort(raw rawPort) *Port {
	return &Port{raw: raw}
}

// Write sends raw bytes.
func (p *Port) Write(b []byte) (int, error) {
	return p.raw.Write(b)
}

// ReadLine returns the next non-empty line without its terminator, or ""
// when none completes within timeout.
func (p *Port) ReadLine(timeout time.Duration) (string, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if line, ok := p.nextLine(); ok {
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", nil
		}
		if err := p.raw.SetReadTimeout(remaining); err != nil {
			return "", err
		}
		n, err := p.raw.Read(p.chunk[:])
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", nil
		}

		p.pending = append(p.pending, p.chunk[:n]...)
		if len(p.pending) > maxLineLength && bytes.IndexByte(p.pending, '\n') < 0 {
			p.pending = p.pending[:0]
		}
	}
}

// nextLine pops the first non-empty line from pending.
func (p *Port) nextLine() (string, bool) {
	for {
		i := bytes.IndexByte(p.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := bytes.TrimRight(p.pending[:i], "\r")
		p.pending = p.pending[i+1:]
		if len(line) > 0 {
			return string(line), true
		}
	}
}

// Close closes the port.
func (p *Port) Close() error {
	return p.raw.Close()
}
