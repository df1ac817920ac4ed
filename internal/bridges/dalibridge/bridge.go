package dalibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one Transmit or QueryReply.
	commandTimeout = 5 * time.Second

	// pumpTimeout is the receive wait of the bus pump. The pump holds the
	// bus lock for at most this long, so it also bounds command latency.
	pumpTimeout = 50 * time.Millisecond

	// receiveErrorBackoff is the pause after a non-fatal receive error.
	receiveErrorBackoff = 100 * time.Millisecond

	// workQueueSize is how many commands and requests may wait for the bus.
	workQueueSize = 32

	pruneInterval = time.Hour

	controlQoS byte = 1
	busQoS     byte = 0
)

// Logger is the logging interface used by the bridge.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Telemetry receives frame and engine measurements. *influxdb.Client
// satisfies it.
type Telemetry interface {
	WriteFrame(dir string, frame dali.Frame, at time.Time)
	WriteEngineStats(stats dali.EngineStats, at time.Time)
}

// CaptureSink appends frames to a capture file. *capture.Writer satisfies it.
type CaptureSink interface {
	Record(dir capture.Direction, f dali.Frame) error
}

// FrameJournal persists frames. *Journal satisfies it.
type FrameJournal interface {
	Record(ctx context.Context, dir capture.Direction, frame dali.Frame, at time.Time) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// BridgeOptions configures a Bridge. Driver and MQTT are required; the
// recording sinks are optional and must be nil interfaces when unused.
type BridgeOptions struct {
	GatewayID string
	Version   string
	Transport string

	Driver dali.Driver
	MQTT   MQTTClient

	Journal   FrameJournal
	Capture   CaptureSink
	Telemetry Telemetry

	// JournalRetention is how long journaled frames are kept.
	// Zero keeps them forever.
	JournalRetention time.Duration

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// HealthChecks probe the recording backends on every health report.
	HealthChecks map[string]HealthCheck

	Logger Logger
}

// Bridge connects one DALI bus to MQTT.
// It handles:
//   - Commands from MQTT, transmitted as forward frames and acknowledged
//   - Requests from MQTT, run as query/reply exchanges and answered
//   - Frames received from the bus, published and recorded
//   - Health reporting and graceful shutdown
//
// The bus is a single half-duplex channel, so everything touching the
// driver runs under busMu: the pump, and one worker for commands and
// requests. A query therefore consumes its own reply.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   BridgeOptions
	topics mqtt.Topics
	driver dali.Driver
	client MQTTClient
	health *HealthReporter

	busMu sync.Mutex
	work  chan func()

	commands  atomic.Uint64
	requests  atomic.Uint64
	forwarded atomic.Uint64
	failures  atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	now func() time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin processing.
//
// Parameters:
//   - opts: Driver, MQTT client, gateway identity and optional sinks
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required dependency is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.GatewayID == "" {
		return nil, fmt.Errorf("gateway ID is required")
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("DALI driver is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:      opts,
		topics:    mqtt.Topics{Gateway: opts.GatewayID},
		driver:    opts.Driver,
		client:    opts.MQTT,
		work:      make(chan func(), workQueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		now:       time.Now,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		GatewayID: opts.GatewayID,
		Version:   opts.Version,
		Transport: opts.Transport,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Engine:    opts.Driver,
		Bridge:    b.Statistics,
		Telemetry: opts.Telemetry,
		Checks:    opts.HealthChecks,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to commands and requests and starts the bus pump,
// the worker and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.client.Subscribe(b.topics.Command(), controlQoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", b.topics.Command())

	if err := b.client.Subscribe(b.topics.Request(), controlQoS, b.handleRequest); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", b.topics.Request())

	b.wg.Add(2)
	go b.pump()
	go b.worker()

	if b.opts.Journal != nil && b.opts.JournalRetention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"gateway", b.opts.GatewayID,
		"transport", b.opts.Transport)
	return nil
}

// Stop shuts the bridge down and waits for its goroutines. The driver is
// left open for the caller to close. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Refuse new work before the worker goes away
		if b.client.IsConnected() {
			for _, topic := range []string{b.topics.Command(), b.topics.Request()} {
				if err := b.client.Unsubscribe(topic); err != nil {
					b.logWarn("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		}

		close(b.done)

		// Abort in-flight transmissions
		b.ctxCancel()

		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// Statistics returns MQTT side counters.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		Commands:        b.commands.Load(),
		Requests:        b.requests.Load(),
		FramesForwarded: b.forwarded.Load(),
		Errors:          b.failures.Load(),
	}
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// pump forwards received bus events until Stop or until the driver's
// receive goroutine is gone.
func (b *Bridge) pump() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		default:
		}

		b.busMu.Lock()
		frame, err := b.driver.Receive(pumpTimeout)
		b.busMu.Unlock()

		if err != nil {
			if errors.Is(err, dali.ErrReceiveNotRunning) || errors.Is(err, dali.ErrClosed) {
				b.logWarn("bus receive unavailable, not forwarding bus traffic", "error", err)
				return
			}
			b.failures.Add(1)
			b.logError("bus receive failed", err)
			select {
			case <-b.done:
				return
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}
		if frame.Status == dali.StatusTimeout {
			continue
		}

		b.handleBusFrame(frame)
	}
}

func (b *Bridge) handleBusFrame(frame dali.Frame) {
	b.record(capture.DirectionIn, frame)

	msg := NewFrameMessage(b.opts.GatewayID, capture.DirectionIn, frame)
	if err := b.publishJSON(b.topics.Bus(), msg, busQoS, false); err != nil {
		b.logError("failed to publish bus frame", err)
		return
	}
	b.forwarded.Add(1)
	b.logDebug("bus frame", "frame", frame.String())
}

// worker runs queued commands and requests one at a time.
func (b *Bridge) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case job := <-b.work:
			job()
		}
	}
}

// enqueue hands job to the worker without blocking the MQTT client.
func (b *Bridge) enqueue(job func()) error {
	select {
	case <-b.done:
		return context.Canceled
	case b.work <- job:
		return nil
	default:
		return ErrBusy
	}
}

// handleCommand processes a CommandMessage from MQTT.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	b.commands.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.failures.Add(1)
		b.publishAck(AckMessage{
			Status: AckFailed,
			Error:  &ErrorDetail{Code: ErrCodeInvalidPayload, Message: err.Error()},
		})
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	frame := cmd.Frame()
	if err := validateFrame(frame); err != nil {
		b.failCommand(cmd, frame, err)
		return nil
	}

	err := b.enqueue(func() { b.executeCommand(cmd, frame) })
	if err != nil {
		b.failCommand(cmd, frame, err)
	}
	return nil
}

func (b *Bridge) executeCommand(cmd CommandMessage, frame dali.Frame) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.busMu.Lock()
	err := b.driver.Transmit(ctx, frame, cmd.Block)
	b.busMu.Unlock()

	if err != nil {
		b.failCommand(cmd, frame, err)
		return
	}

	b.record(capture.DirectionOut, frame)
	b.publishAck(AckMessage{
		CommandID: cmd.ID,
		Status:    AckAccepted,
		Frame:     NewFrameMessage(b.opts.GatewayID, capture.DirectionOut, frame),
	})
	b.logDebug("command transmitted", "command_id", cmd.ID, "frame", frame.String(), "source", cmd.Source)
}

func (b *Bridge) failCommand(cmd CommandMessage, frame dali.Frame, err error) {
	b.failures.Add(1)
	status, code := classifyError(err)
	b.publishAck(AckMessage{
		CommandID: cmd.ID,
		Status:    status,
		Frame:     NewFrameMessage(b.opts.GatewayID, capture.DirectionOut, frame),
		Error:     &ErrorDetail{Code: code, Message: err.Error()},
	})
	b.logWarn("command failed", "command_id", cmd.ID, "code", code, "error", err)
}

func (b *Bridge) publishAck(ack AckMessage) {
	ack.Gateway = b.opts.GatewayID
	ack.Timestamp = b.now().UTC()
	if err := b.publishJSON(b.topics.Ack(), ack, controlQoS, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// handleRequest processes a RequestMessage from MQTT.
func (b *Bridge) handleRequest(_ string, payload []byte) error {
	b.requests.Add(1)

	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		// Without a request ID there is no response topic.
		b.failures.Add(1)
		return fmt.Errorf("parse request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	frame := req.Frame()
	if err := validateFrame(frame); err != nil {
		b.failRequest(req, err)
		return nil
	}

	if err := b.enqueue(func() { b.executeRequest(req, frame) }); err != nil {
		b.failRequest(req, err)
	}
	return nil
}

func (b *Bridge) executeRequest(req RequestMessage, frame dali.Frame) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.busMu.Lock()
	reply, err := b.driver.QueryReply(ctx, frame)
	b.busMu.Unlock()

	if err != nil {
		b.failRequest(req, err)
		return
	}

	b.record(capture.DirectionOut, frame)
	b.record(capture.DirectionIn, reply)
	b.publishResponse(ResponseMessage{
		RequestID: req.RequestID,
		Success:   true,
		Reply:     NewFrameMessage(b.opts.GatewayID, capture.DirectionIn, reply),
	})
	b.logDebug("query answered", "request_id", req.RequestID, "request", frame.String(), "reply", reply.String())
}

func (b *Bridge) failRequest(req RequestMessage, err error) {
	b.failures.Add(1)
	_, code := classifyError(err)
	b.publishResponse(ResponseMessage{
		RequestID: req.RequestID,
		Success:   false,
		Error:     &ErrorDetail{Code: code, Message: err.Error()},
	})
	b.logWarn("request failed", "request_id", req.RequestID, "code", code, "error", err)
}

func (b *Bridge) publishResponse(resp ResponseMessage) {
	resp.Gateway = b.opts.GatewayID
	resp.Timestamp = b.now().UTC()
	if err := b.publishJSON(b.topics.Response(resp.RequestID), resp, controlQoS, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// classifyError maps a transmit or query error to an ack status and code.
func classifyError(err error) (AckStatus, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return AckTimeout, ErrCodeTimeout
	case errors.Is(err, ErrBusy), errors.Is(err, context.Canceled):
		return AckFailed, ErrCodeBusy
	case errors.Is(err, dali.ErrReceiveNotRunning):
		return AckFailed, ErrCodeNotRunning
	case errors.Is(err, dali.ErrInvalidFrame), errors.Is(err, ErrInvalidCommand):
		return AckFailed, ErrCodeInvalidFrame
	default:
		return AckFailed, ErrCodeTransport
	}
}

// record writes a frame to every configured sink. Sink failures are logged
// and never affect bus traffic.
func (b *Bridge) record(dir capture.Direction, frame dali.Frame) {
	at := b.now()

	if b.opts.Journal != nil {
		if err := b.opts.Journal.Record(b.ctx, dir, frame, at); err != nil {
			b.logError("failed to journal frame", err)
		}
	}
	if b.opts.Capture != nil {
		if err := b.opts.Capture.Record(dir, frame); err != nil {
			b.logError("failed to capture frame", err)
		}
	}
	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteFrame(dir.String(), frame, at)
	}
}

// pruneLoop removes journal entries older than the retention period.
func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := b.opts.Journal.Prune(b.ctx, b.now().Add(-b.opts.JournalRetention)); err != nil &&
			!errors.Is(err, context.Canceled) {
			b.logError("failed to prune frame journal", err)
		}

		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) publishJSON(topic string, v any, qos byte, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return b.client.Publish(topic, payload, qos, retained)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
