package dali

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Engine defaults.
const (
	// DefaultQueueSize is the receive queue capacity when none is configured.
	DefaultQueueSize = 40

	// EnqueueTimeout is how long the reader waits for space in a full queue
	// before discarding the oldest frame.
	EnqueueTimeout = 100 * time.Millisecond

	// errorBackoff spaces out retries after a non-fatal read error.
	errorBackoff = 10 * time.Millisecond

	timeoutMessage = "queue is empty, timeout from receive"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Source is the per-transport read step driven by the Engine.
//
// ReadData pulls one unit of raw data from the transport (blocking no longer
// than the transport's short read timeout) and decodes it. ok is false for
// benign non-events such as a read timeout or an ignored report type; those
// must not be reported as errors. Errors wrapping ErrTransportFailed or
// io.EOF are fatal and stop the Engine; anything else is logged and the loop
// carries on.
type Source interface {
	ReadData() (frame Frame, ok bool, err error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (Frame, bool, error)

// ReadData calls f.
func (f SourceFunc) ReadData() (Frame, bool, error) { return f() }

// EngineOptions configures an Engine.
type EngineOptions struct {
	// QueueSize is the receive queue capacity. Default: 40.
	QueueSize int

	// Logger is optional.
	Logger Logger

	// Observer, when set, is called from the reader goroutine for every
	// decoded frame before it is queued. It must not block.
	Observer func(Frame)
}

// EngineStats holds receive statistics.
type EngineStats struct {
	FramesReceived uint64
	FramesDropped  uint64 // Oldest frames discarded because the queue stayed full
	FramesFlushed  uint64
	ReadErrors     uint64
	Panics         uint64
	QueueDepth     int
	QueueCapacity  int
	LastActivity   time.Time
	Running        bool
}

// Engine runs one background goroutine that repeatedly calls Source.ReadData
// and feeds decoded frames into a bounded FIFO queue.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Frames are delivered in decode order.
type Engine struct {
	src      Source
	queue    chan Frame
	observer func(Frame)

	// Lifecycle. mu guards done and exited; running is read lock-free.
	mu      sync.Mutex
	done    *closeOnce
	exited  chan struct{}
	running atomic.Bool

	// Cause of a fatal stop, if any.
	errMu sync.RWMutex
	err   error

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64
	framesFlushed  atomic.Uint64
	readErrors     atomic.Uint64
	panics         atomic.Uint64
	lastActivity   atomic.Int64 // Unix nanoseconds
}

// NewEngine creates a stopped engine reading from src.
//
// Parameters:
//   - src: Transport read step
//   - opts: Queue size and optional logger
//
// Returns:
//   - *Engine: Call Start to begin receiving
func NewEngine(src Source, opts EngineOptions) *Engine {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Engine{
		src:      src,
		queue:    make(chan Frame, size),
		observer: opts.Observer,
		logger:   opts.Logger,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// Start flushes stale frames and spawns the reader goroutine.
// It is a no-op while the goroutine is already running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return
	}

	// Consumers must never see frames queued before this start.
	e.Flush()

	e.errMu.Lock()
	e.err = nil
	e.errMu.Unlock()

	e.done = newCloseOnce()
	e.exited = make(chan struct{})
	e.running.Store(true)

	go e.run(e.done, e.exited)
}

// Running reports whether the reader goroutine is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Err returns the fatal error that stopped the reader, if any.
func (e *Engine) Err() error {
	e.errMu.RLock()
	defer e.errMu.RUnlock()
	return e.err
}

// Receive dequeues the next frame.
//
// Parameters:
//   - timeout: NoTimeout (any negative value) blocks until a frame arrives,
//     zero polls, anything else waits at most that long
//
// Returns:
//   - Frame: The next frame, or a StatusTimeout frame if none arrived in time
//   - error: ErrReceiveNotRunning if the reader goroutine is not running
func (e *Engine) Receive(timeout time.Duration) (Frame, error) {
	return e.ReceiveContext(context.Background(), timeout)
}

// ReceiveContext is Receive that also returns early when ctx is done.
func (e *Engine) ReceiveContext(ctx context.Context, timeout time.Duration) (Frame, error) {
	e.mu.Lock()
	exited := e.exited
	e.mu.Unlock()

	if !e.running.Load() || exited == nil {
		return Frame{}, e.notRunning()
	}

	if timeout == 0 {
		select {
		case f := <-e.queue:
			return f, nil
		default:
			return TimeoutFrame(timeoutMessage), nil
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case f := <-e.queue:
		return f, nil
	case <-expired:
		return TimeoutFrame(timeoutMessage), nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-exited:
		return Frame{}, e.notRunning()
	}
}

// Flush discards all queued frames without blocking.
//
// Returns:
//   - int: Number of frames discarded
func (e *Engine) Flush() int {
	n := 0
	for {
		select {
		case <-e.queue:
			n++
		default:
			if n > 0 {
				e.framesFlushed.Add(uint64(n))
			}
			return n
		}
	}
}

// Close stops the reader goroutine and waits for it to exit. Once Close
// returns nothing more is queued. Calling it again, or on an engine that
// never started, is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	done, exited := e.done, e.exited
	e.mu.Unlock()

	if done == nil {
		return nil
	}
	done.Close()
	<-exited
	return nil
}

// Stats returns current statistics.
func (e *Engine) Stats() EngineStats {
	var last time.Time
	if ns := e.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return EngineStats{
		FramesReceived: e.framesReceived.Load(),
		FramesDropped:  e.framesDropped.Load(),
		FramesFlushed:  e.framesFlushed.Load(),
		ReadErrors:     e.readErrors.Load(),
		Panics:         e.panics.Load(),
		QueueDepth:     len(e.queue),
		QueueCapacity:  cap(e.queue),
		LastActivity:   last,
		Running:        e.running.Load(),
	}
}

// run is the reader goroutine.
func (e *Engine) run(done *closeOnce, exited chan struct{}) {
	defer close(exited)
	defer e.running.Store(false)

	for {
		select {
		case <-done.Done():
			return
		default:
		}

		if e.step(done.Done()) {
			return
		}
	}
}

// step performs one read and returns true if the reader must stop.
// A panic in the transport is contained to this iteration.
func (e *Engine) step(done <-chan struct{}) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logError("read step panic", fmt.Errorf("%v", r))
			stop = false
		}
	}()

	frame, ok, err := e.src.ReadData()
	if err != nil {
		if isFatal(err) {
			e.errMu.Lock()
			e.err = err
			e.errMu.Unlock()
			e.logError("transport failed, receive stopped", err)
			return true
		}
		e.readErrors.Add(1)
		e.logWarn("read failed", "error", err)
		select {
		case <-done:
		case <-time.After(errorBackoff):
		}
		return false
	}
	if !ok {
		return false
	}

	e.framesReceived.Add(1)
	e.lastActivity.Store(time.Now().UnixNano())
	if e.observer != nil {
		e.observer(frame)
	}
	e.enqueue(frame, done)
	return false
}

// enqueue adds frame to the queue. When the queue is full it waits up to
// EnqueueTimeout, then discards the oldest frame to make room.
func (e *Engine) enqueue(frame Frame, done <-chan struct{}) {
	select {
	case e.queue <- frame:
		return
	default:
	}

	timer := time.NewTimer(EnqueueTimeout)
	defer timer.Stop()

	select {
	case e.queue <- frame:
		return
	case <-done:
		return
	case <-timer.C:
	}

	// Only this goroutine produces, so one freed slot is enough.
	for {
		select {
		case old := <-e.queue:
			e.framesDropped.Add(1)
			e.logWarn("receive queue full, dropping oldest frame", "dropped", old.String())
		default:
		}
		select {
		case e.queue <- frame:
			return
		default:
		}
	}
}

func (e *Engine) notRunning() error {
	if cause := e.Err(); cause != nil {
		return fmt.Errorf("%w: %w", ErrReceiveNotRunning, cause)
	}
	return ErrReceiveNotRunning
}

// isFatal reports whether a read error must stop the reader.
func isFatal(err error) bool {
	return errors.Is(err, ErrTransportFailed) || errors.Is(err, io.EOF)
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Engine) logError(msg string, err error) {
	if l := e.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if l := e.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
