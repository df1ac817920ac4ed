package dalibridge

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
)

// CommandMessage asks the gateway to transmit a forward frame.
// Topic: graylogic/command/dali/{gateway}
type CommandMessage struct {
	// ID correlates the acknowledgement. Generated when empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Length is the frame length in bits (8, 16, 24 or 25).
	Length int `json:"length"`

	// Data is the payload, right-justified.
	Data uint32 `json:"data"`

	// Priority is the serial arbitration class. Zero means the default.
	Priority int `json:"priority,omitempty"`

	// SendTwice repeats the frame (configuration commands).
	SendTwice bool `json:"send_twice,omitempty"`

	// Block waits for the interface to confirm the frame before acking.
	Block bool `json:"block,omitempty"`

	// Source identifies the sender, e.g. "scene", "api".
	Source string `json:"source,omitempty"`
}

// Frame builds the frame to transmit.
func (m *CommandMessage) Frame() dali.Frame {
	return buildFrame(m.Length, m.Data, m.Priority, m.SendTwice)
}

// RequestMessage asks the gateway to send a query and return the reply.
// Topic: graylogic/request/dali/{gateway}
type RequestMessage struct {
	// RequestID correlates the response. Generated when empty.
	RequestID string `json:"request_id"`

	Timestamp time.Time `json:"timestamp"`
	Length    int       `json:"length"`
	Data      uint32    `json:"data"`
	Priority  int       `json:"priority,omitempty"`
}

// Frame builds the query frame.
func (m *RequestMessage) Frame() dali.Frame {
	return buildFrame(m.Length, m.Data, m.Priority, false)
}

func buildFrame(length int, data uint32, priority int, twice bool) dali.Frame {
	f := dali.NewFrame(length, data)
	if priority > 0 {
		f.Priority = priority
	}
	f.SendTwice = twice
	return f
}

// validateFrame rejects frames the bus interfaces cannot send.
func validateFrame(f dali.Frame) error {
	if f.Length <= 0 {
		return fmt.Errorf("%w: length must be positive", ErrInvalidCommand)
	}
	return f.Validate()
}

// AckStatus represents the status of a command acknowledgement.
type AckStatus string

// Acknowledgement statuses.
const (
	// AckAccepted means the interface took the frame. For blocking commands
	// the interface has also confirmed it.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the frame was rejected or the transport failed.
	AckFailed AckStatus = "failed"

	// AckTimeout means no confirmation arrived in time.
	AckTimeout AckStatus = "timeout"
)

// Error codes for acknowledgements and responses.
const (
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInvalidFrame   = "INVALID_FRAME"
	ErrCodeBusy           = "BUSY"
	ErrCodeNotRunning     = "RECEIVE_NOT_RUNNING"
	ErrCodeTransport      = "TRANSPORT_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
)

// AckMessage reports the outcome of a CommandMessage.
// Topic: graylogic/ack/dali/{gateway}
// QoS: 1, Retained: No
type AckMessage struct {
	CommandID string        `json:"command_id"`
	Timestamp time.Time     `json:"timestamp"`
	Gateway   string        `json:"gateway"`
	Status    AckStatus     `json:"status"`
	Frame     *FrameMessage `json:"frame,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
}

// ErrorDetail explains a failed command or request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMessage carries the reply to a RequestMessage.
// Topic: graylogic/response/dali/{request_id}
//
// A query without an answer is a success whose Reply has status TIMEOUT;
// in DALI silence is a valid answer ("no").
type ResponseMessage struct {
	RequestID string        `json:"request_id"`
	Timestamp time.Time     `json:"timestamp"`
	Gateway   string        `json:"gateway"`
	Success   bool          `json:"success"`
	Reply     *FrameMessage `json:"reply,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
}

// FrameMessage is the wire form of a frame.
// Topic: graylogic/bus/dali/{gateway} for received frames.
type FrameMessage struct {
	Gateway   string      `json:"gateway"`
	Direction string      `json:"direction"`
	Timestamp float64     `json:"timestamp"`
	Length    int         `json:"length"`
	Data      uint32      `json:"data"`
	Hex       string      `json:"hex,omitempty"`
	SendTwice bool        `json:"send_twice,omitempty"`
	Status    dali.Status `json:"status"`
	Message   string      `json:"message,omitempty"`
}

// NewFrameMessage converts a frame for publishing.
func NewFrameMessage(gateway string, dir capture.Direction, f dali.Frame) *FrameMessage {
	m := &FrameMessage{
		Gateway:   gateway,
		Direction: dir.String(),
		Timestamp: f.Timestamp,
		Length:    f.Length,
		Data:      f.Data,
		SendTwice: f.SendTwice,
		Status:    f.Status,
		Message:   f.Message,
	}
	if f.Length > 0 {
		m.Hex = fmt.Sprintf("%0*X", (f.Length+3)/4, f.Data)
	}
	return m
}

// HealthStatus represents the gateway's operational state.
type HealthStatus string

// Health statuses.
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage reports gateway status.
// Topic: graylogic/health/dali
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Gateway       string            `json:"gateway"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	Transport     string            `json:"transport"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Engine        *EngineStatistics `json:"engine,omitempty"`
	Bridge        *BridgeStatistics `json:"bridge,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// EngineStatistics mirrors dali.EngineStats.
type EngineStatistics struct {
	Running        bool       `json:"running"`
	FramesReceived uint64     `json:"frames_received"`
	FramesDropped  uint64     `json:"frames_dropped"`
	FramesFlushed  uint64     `json:"frames_flushed"`
	ReadErrors     uint64     `json:"read_errors"`
	Panics         uint64     `json:"panics"`
	QueueDepth     int        `json:"queue_depth"`
	QueueCapacity  int        `json:"queue_capacity"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

func newEngineStatistics(s dali.EngineStats) *EngineStatistics {
	es := &EngineStatistics{
		Running:        s.Running,
		FramesReceived: s.FramesReceived,
		FramesDropped:  s.FramesDropped,
		FramesFlushed:  s.FramesFlushed,
		ReadErrors:     s.ReadErrors,
		Panics:         s.Panics,
		QueueDepth:     s.QueueDepth,
		QueueCapacity:  s.QueueCapacity,
	}
	if !s.LastActivity.IsZero() {
		t := s.LastActivity.UTC()
		es.LastActivity = &t
	}
	return es
}

// BridgeStatistics counts MQTT side activity.
type BridgeStatistics struct {
	Commands        uint64 `json:"commands"`
	Requests        uint64 `json:"requests"`
	FramesForwarded uint64 `json:"frames_forwarded"`
	Errors          uint64 `json:"errors"`
}
