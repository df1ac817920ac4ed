package serial

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// DefaultReadTimeout bounds each line read of the receive goroutine.
const DefaultReadTimeout = 200 * time.Millisecond

// Port is an opened serial port configured for the firmware's baud rate.
type Port interface {
	// Write sends raw bytes.
	Write(p []byte) (int, error)

	// ReadLine returns the next line without its terminator, or "" if no
	// complete line arrived within timeout.
	ReadLine(timeout time.Duration) (string, error)

	// Close releases the port.
	Close() error
}

// Options configures a serial driver.
type Options struct {
	// QueueSize is the receive queue capacity. Default: 40.
	QueueSize int

	// DeferReceive leaves the receive goroutine stopped; call StartReceive.
	DeferReceive bool

	// ReadTimeout bounds each background line read. Default: 200ms.
	ReadTimeout time.Duration

	// Transparent, when set, receives a copy of every raw line.
	Transparent io.Writer

	// Logger is optional.
	Logger dali.Logger

	// Observer is called for every received frame (see dali.EngineOptions).
	Observer func(dali.Frame)
}

var _ dali.Driver = (*Driver)(nil)

// Driver talks to the SevenLab serial firmware.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Driver struct {
	port        Port
	engine      *dali.Engine
	readTimeout time.Duration
	transparent io.Writer
	logger      dali.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	loopbackMismatches atomic.Uint64
}

// Open wraps port in a driver and starts the receive goroutine unless
// opts.DeferReceive is set.
func Open(port Port, opts Options) (*Driver, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: no serial port", dali.ErrTransportFailed)
	}
	d := &Driver{
		port:        port,
		readTimeout: opts.ReadTimeout,
		transparent: opts.Transparent,
		logger:      dali.OrNop(opts.Logger),
	}
	if d.readTimeout <= 0 {
		d.readTimeout = DefaultReadTimeout
	}

	d.engine = dali.NewEngine(dali.SourceFunc(d.readData), dali.EngineOptions{
		QueueSize: opts.QueueSize,
		Logger:    opts.Logger,
		Observer:  opts.Observer,
	})
	if !opts.DeferReceive {
		d.engine.Start()
	}
	return d, nil
}

// StartReceive starts the receive goroutine if it is not running.
func (d *Driver) StartReceive() {
	d.engine.Start()
}

// Transmit writes the send command for frame.
//
// With block set, it waits up to dali.DefaultReceiveTimeout for the
// loopback of the frame (two loopbacks when SendTwice is set). The loopback
// only synchronises the caller with the bus; a mismatch is logged, not
// returned.
func (d *Driver) Transmit(ctx context.Context, frame dali.Frame, block bool) error {
	if block && !d.engine.Running() {
		return fmt.Errorf("%w: blocking transmit needs an active receive", dali.ErrReceiveNotRunning)
	}
	if err := d.send(frame, false); err != nil {
		return err
	}
	if !block {
		return nil
	}

	for range loopbackCount(frame) {
		if _, _, err := d.awaitLoopback(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// QueryReply flushes the queue, writes the query command and waits for the
// loopback. A loopback that does not match request is returned unchanged
// without reading the reply. Otherwise the next frame within
// dali.DefaultReceiveTimeout is returned (StatusTimeout if none).
func (d *Driver) QueryReply(ctx context.Context, request dali.Frame) (dali.Frame, error) {
	if !d.engine.Running() {
		return dali.Frame{}, fmt.Errorf("%w: query needs an active receive", dali.ErrReceiveNotRunning)
	}
	res, err := dali.RunQuery(ctx, &query{d: d}, request)
	if err != nil {
		return dali.Frame{}, err
	}
	d.logger.Debug("DALI query finished", "request", request.String(), "reply", res.Reply.String(), "phase", res.Phase.String())
	return res.Reply, nil
}

// Receive dequeues the next event. See dali.Engine.Receive.
func (d *Driver) Receive(timeout time.Duration) (dali.Frame, error) {
	return d.engine.Receive(timeout)
}

// Flush discards queued events.
func (d *Driver) Flush() int {
	return d.engine.Flush()
}

// Stats returns receive statistics.
func (d *Driver) Stats() dali.EngineStats {
	return d.engine.Stats()
}

// LoopbackMismatches returns how many loopbacks did not match their command.
func (d *Driver) LoopbackMismatches() uint64 {
	return d.loopbackMismatches.Load()
}

// Close stops the receive goroutine, then closes the port.
// Safe to call multiple times.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.engine.Close()
	return d.port.Close()
}

// send writes the command line for frame.
func (d *Driver) send(frame dali.Frame, isQuery bool) error {
	if d.closed.Load() {
		return dali.ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}

	cmd := BuildCommand(frame, isQuery)
	d.logger.Debug("DALI>OUT", "command", strings.TrimSuffix(cmd, "\r"))

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	n, err := d.port.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("%w: write: %w", dali.ErrTransportFailed, err)
	}
	if n != len(cmd) {
		return fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, n, len(cmd))
	}
	return nil
}

// awaitLoopback receives one frame and checks it is the loopback of frame.
// The received frame is returned either way.
func (d *Driver) awaitLoopback(ctx context.Context, frame dali.Frame) (dali.Frame, bool, error) {
	lb, err := d.engine.ReceiveContext(ctx, dali.DefaultReceiveTimeout)
	if err != nil {
		return dali.Frame{}, false, err
	}
	if !isLoopbackOf(lb, frame) {
		d.loopbackMismatches.Add(1)
		d.logger.Error("unexpected loopback",
			"sent", frame.String(), "received", lb.String(), "message", lb.Message)
		return lb, false, nil
	}
	return lb, true, nil
}

// readData is the receive goroutine's step.
func (d *Driver) readData() (dali.Frame, bool, error) {
	line, err := d.port.ReadLine(d.readTimeout)
	if err != nil {
		return dali.Frame{}, false, fmt.Errorf("%w: read: %w", dali.ErrTransportFailed, err)
	}
	line = strings.TrimSpace(line)
	if d.transparent != nil && line != "" {
		fmt.Fprintln(d.transparent, line)
	}
	if line == "" {
		return dali.Frame{}, false, nil
	}

	d.logger.Debug("received line from serial", "line", line)
	return Parse(line), true, nil
}

// isLoopbackOf reports whether lb is the firmware's echo of frame.
func isLoopbackOf(lb, frame dali.Frame) bool {
	return lb.Status == dali.StatusLoopback && lb.Data == frame.Data && lb.Length == frame.Length
}

// loopbackCount is how many loopbacks the firmware produces for frame.
func loopbackCount(frame dali.Frame) int {
	if frame.SendTwice {
		return 2
	}
	return 1
}

// query adapts the driver to dali.QueryExchange: the firmware confirms a
// request with a loopback frame.
type query struct {
	d *Driver
}

func (q *query) Flush() int { return q.d.engine.Flush() }

func (q *query) Send(_ context.Context, request dali.Frame) error {
	return q.d.send(request, true)
}

func (q *query) Confirm(ctx context.Context, request dali.Frame) (dali.Frame, bool, error) {
	var lb dali.Frame
	for range loopbackCount(request) {
		var ok bool
		var err error
		lb, ok, err = q.d.awaitLoopback(ctx, request)
		if err != nil || !ok {
			return lb, false, err
		}
	}
	return lb, true, nil
}

func (q *query) AwaitReply(ctx context.Context) (dali.Frame, error) {
	q.d.logger.Debug("read backframe")
	return q.d.engine.ReceiveContext(ctx, dali.DefaultReceiveTimeout)
}
