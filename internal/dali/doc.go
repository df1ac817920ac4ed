// Package dali implements the transport-independent core of the Gray Logic
// DALI driver.
//
// DALI (Digital Addressable Lighting Interface) is a half-duplex two-wire
// lighting bus. Gray Logic talks to it through a bus interface, either the
// Lunatone DALI USB stick (binary HID reports) or the SevenLab LPC1114
// firmware (ASCII lines over a serial port). This package holds what both
// transports share:
//
//   - Frame and Status, the value types describing one bus event
//   - Engine, the background reader goroutine feeding a bounded queue
//   - RunQuery, the send-then-await-reply handshake
//   - Driver, the interface every transport implements
//
// # Architecture
//
//	┌──────────────┐  Transmit/QueryReply   ┌──────────────┐   reports/lines
//	│    caller    │───────────────────────►│  usb/serial  │◄───────────────► bus interface
//	│              │◄───────────────────────│    driver    │
//	└──────────────┘        Receive         └──────┬───────┘
//	                                               │ ReadData
//	                                        ┌──────▼───────┐
//	                                        │    Engine    │ (one goroutine, bounded queue)
//	                                        └──────────────┘
//
// # Timeouts
//
// A receive that finds nothing within its timeout returns a Frame with
// StatusTimeout and a nil error. Timeouts are data, not failures; callers
// must inspect Frame.Status.
//
// # Overflow
//
// When the queue is full the reader goroutine waits up to EnqueueTimeout for
// a consumer. If the queue is still full it discards the oldest queued frame
// and counts it in EngineStats.FramesDropped. The same policy applies to every
// transport.
//
// # Thread Safety
//
// Engine and all drivers are safe for concurrent use. Frames are plain values.
//
// # References
//
//   - IEC 62386 (DALI)
//   - Lunatone DALI USB protocol description
package dali
