package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

const (
	// DefaultReadTimeout bounds each read of the receive goroutine so Close
	// is observed promptly.
	DefaultReadTimeout = 100 * time.Millisecond

	// drainTimeout is the read timeout used to discard pending reports on open.
	drainTimeout = 10 * time.Millisecond

	// maxDrainReports caps the drain so a chatty bus cannot stall Open.
	maxDrainReports = 256
)

// Endpoint is an already-claimed HID endpoint pair.
type Endpoint interface {
	// Write sends one output report and returns the bytes written.
	Write(report []byte) (int, error)

	// ReadReport reads one input report into buf. It returns ErrReadTimeout
	// when nothing arrives within timeout.
	ReadReport(buf []byte, timeout time.Duration) (int, error)

	// Close releases the device.
	Close() error
}

// ProductDescriber is implemented by endpoints that can report the USB
// product string.
type ProductDescriber interface {
	Product() (string, error)
}

// Options configures a USB driver.
type Options struct {
	// QueueSize is the receive queue capacity. Default: 40.
	QueueSize int

	// DeferReceive leaves the receive goroutine stopped; call StartReceive.
	DeferReceive bool

	// ReadTimeout bounds each background read. Default: 100ms.
	ReadTimeout time.Duration

	// Logger is optional.
	Logger dali.Logger

	// Observer is called for every received frame (see dali.EngineOptions).
	Observer func(dali.Frame)
}

// Ensure Driver implements the shared interfaces.
var (
	_ dali.Driver          = (*Driver)(nil)
	_ dali.PowerController = (*Driver)(nil)
)

// Driver talks to a Lunatone DALI USB interface.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes are serialised; the sequence number advances once per transmit.
type Driver struct {
	ep          Endpoint
	engine      *dali.Engine
	readTimeout time.Duration
	powerSupply bool
	logger      dali.Logger

	// writeMu serialises writes and guards sendSeq.
	writeMu sync.Mutex
	sendSeq uint8

	// Last sequence number reported by the device.
	recvSeq atomic.Uint32

	// Reader goroutine scratch buffer.
	buf [ReportSize]byte

	closed atomic.Bool
}

// Open prepares ep for use: it discards reports the device queued before we
// attached, checks for an integrated power supply and starts the receive
// goroutine unless opts.DeferReceive is set.
//
// Parameters:
//   - ep: Claimed HID endpoint
//   - opts: Driver options
//
// Returns:
//   - *Driver: Ready driver
//   - error: Only if the endpoint fails outright
func Open(ep Endpoint, opts Options) (*Driver, error) {
	if ep == nil {
		return nil, ErrDeviceNotFound
	}
	d := &Driver{
		ep:          ep,
		readTimeout: opts.ReadTimeout,
		logger:      dali.OrNop(opts.Logger),
	}
	if d.readTimeout <= 0 {
		d.readTimeout = DefaultReadTimeout
	}

	if pd, ok := ep.(ProductDescriber); ok {
		product, err := pd.Product()
		if err != nil {
			d.logger.Warn("reading USB product string failed", "error", err)
		}
		d.powerSupply = product == PowerSupplyProduct
		if d.powerSupply {
			d.logger.Debug("DALI USB interface has integrated power supply")
		}
	}

	if err := d.drainPending(); err != nil {
		return nil, err
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

// drainPending discards reports left over from before Open.
func (d *Driver) drainPending() error {
	var buf [ReportSize]byte
	for range maxDrainReports {
		_, err := d.ep.ReadReport(buf[:], drainTimeout)
		if errors.Is(err, ErrReadTimeout) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: draining pending reports: %w", dali.ErrTransportFailed, err)
		}
		d.logger.Info("DALI interface - disregard pending message")
	}
	return nil
}

// StartReceive starts the receive goroutine if it is not running.
func (d *Driver) StartReceive() {
	d.engine.Start()
}

// HasPowerSupply reports whether the interface identified itself as having
// an integrated bus power supply.
func (d *Driver) HasPowerSupply() bool {
	return d.powerSupply
}

// Transmit sends a forward frame.
//
// Parameters:
//   - ctx: Bounds the confirmation wait when block is true
//   - frame: Frame of 8, 16 or 24 bits
//   - block: Wait until the device reports a sequence number at or past
//     the one just sent
//
// Returns:
//   - error: ErrUnsupportedLength, ErrShortWrite, dali.ErrReceiveNotRunning
//     for a blocking call without a receive goroutine, or ctx.Err()
func (d *Driver) Transmit(ctx context.Context, frame dali.Frame, block bool) error {
	if block && !d.engine.Running() {
		return fmt.Errorf("%w: blocking transmit needs an active receive", dali.ErrReceiveNotRunning)
	}
	seq, err := d.send(frame)
	if err != nil {
		return err
	}
	if !block {
		return nil
	}
	return d.awaitSequence(ctx, seq)
}

// QueryReply flushes the queue, transmits request blocking, then waits up
// to dali.DefaultReceiveTimeout for the reply. No reply gives a
// StatusTimeout frame.
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

// Power switches the integrated bus power supply.
//
// Returns:
//   - error: ErrPowerUnsupported on interfaces without one
func (d *Driver) Power(on bool) error {
	if !d.powerSupply {
		return ErrPowerUnsupported
	}
	report := EncodePower(on)
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.write(report[:])
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

// Close stops the receive goroutine, then releases the endpoint.
// Safe to call multiple times.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.engine.Close()
	return d.ep.Close()
}

// send encodes and writes frame, returning the sequence number used.
func (d *Driver) send(frame dali.Frame) (uint8, error) {
	if d.closed.Load() {
		return 0, dali.ErrClosed
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	seq := d.sendSeq + 1
	report, err := EncodeSend(frame, seq)
	if err != nil {
		return 0, err
	}
	d.logger.Debug("DALI>OUT",
		"seq", seq, "type", report[offType], "ext", report[offExt],
		"address", report[offAddress], "opcode", report[offOpcode])

	if err := d.write(report[:]); err != nil {
		return 0, err
	}
	d.sendSeq = seq
	return seq, nil
}

// write sends one report. Caller holds writeMu.
func (d *Driver) write(report []byte) error {
	n, err := d.ep.Write(report)
	if err != nil {
		return fmt.Errorf("%w: write: %w", dali.ErrTransportFailed, err)
	}
	if n != ReportSize {
		return fmt.Errorf("%w: wrote %d bytes, expected %d", ErrShortWrite, n, ReportSize)
	}
	return nil
}

// awaitSequence consumes events until the device has processed seq.
// Each wait is bounded by dali.DefaultReceiveTimeout; only ctx ends the loop
// early.
func (d *Driver) awaitSequence(ctx context.Context, seq uint8) error {
	for {
		if _, err := d.engine.ReceiveContext(ctx, dali.DefaultReceiveTimeout); err != nil {
			return err
		}
		if sequenceReached(uint8(d.recvSeq.Load()), seq) {
			return nil
		}
	}
}

// readData is the receive goroutine's step.
func (d *Driver) readData() (dali.Frame, bool, error) {
	n, err := d.ep.ReadReport(d.buf[:], d.readTimeout)
	if errors.Is(err, ErrReadTimeout) {
		return dali.Frame{}, false, nil
	}
	if err != nil {
		return dali.Frame{}, false, fmt.Errorf("%w: read: %w", dali.ErrTransportFailed, err)
	}
	if n == 0 {
		return dali.Frame{}, false, nil
	}

	report, err := DecodeReport(d.buf[:n])
	if err != nil {
		return dali.Frame{}, false, err
	}
	d.recvSeq.Store(uint32(report.Sequence))
	d.logger.Debug("DALI[IN]", "seq", report.Sequence, "type", report.ReadType)
	if report.Ignored {
		return dali.Frame{}, false, nil
	}

	frame := report.Frame
	frame.Timestamp = dali.Stamp(time.Now())
	return frame, true, nil
}

// query adapts the driver to dali.QueryExchange: the device confirms a
// request by reporting its sequence number.
type query struct {
	d   *Driver
	seq uint8
}

func (q *query) Flush() int { return q.d.engine.Flush() }

func (q *query) Send(_ context.Context, request dali.Frame) error {
	seq, err := q.d.send(request)
	q.seq = seq
	return err
}

func (q *query) Confirm(ctx context.Context, _ dali.Frame) (dali.Frame, bool, error) {
	if err := q.d.awaitSequence(ctx, q.seq); err != nil {
		return dali.Frame{}, false, err
	}
	return dali.Frame{}, true, nil
}

func (q *query) AwaitReply(ctx context.Context) (dali.Frame, error) {
	return q.d.engine.ReceiveContext(ctx, dali.DefaultReceiveTimeout)
}
