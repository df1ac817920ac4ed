package dali

import (
	"context"
	"time"
)

// DefaultReceiveTimeout bounds every wait inside Transmit and QueryReply.
const DefaultReceiveTimeout = time.Second

// NoTimeout makes Receive block until a frame arrives.
const NoTimeout time.Duration = -1

// Logger interface for optional logging.
// *logging.Logger from the infrastructure package satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Driver is the uniform frame exchange API shared by every transport.
type Driver interface {
	// Transmit sends a forward frame. With block set it returns only once
	// the interface has confirmed the frame (or ctx is done).
	Transmit(ctx context.Context, frame Frame, block bool) error

	// QueryReply sends a frame and returns the correlated reply. A missing
	// reply is a StatusTimeout frame, not an error.
	QueryReply(ctx context.Context, request Frame) (Frame, error)

	// Receive dequeues the next bus event. See Engine.Receive.
	Receive(timeout time.Duration) (Frame, error)

	// Flush discards queued events and returns how many were dropped.
	Flush() int

	// Stats returns receive statistics.
	Stats() EngineStats

	// Close stops the receive goroutine and releases the transport.
	Close() error
}

// PowerController is implemented by interfaces with an integrated bus power
// supply.
type PowerController interface {
	Power(on bool) error
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// OrNop returns l, or a logger that discards everything when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
