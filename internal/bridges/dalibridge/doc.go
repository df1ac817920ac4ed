// Package dalibridge connects a DALI bus interface to the Gray Logic MQTT bus.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   USB HID
//	│   Gray Logic    │   MQTT   │   DALI Bridge   │   or serial
//	│      Core       │◄────────►│   (this pkg)    │◄────────► DALI Bus
//	└─────────────────┘          └─────────────────┘
//
// # Topics
//
//   - graylogic/command/dali/{gateway}: CommandMessage in, transmitted as a
//     forward frame
//   - graylogic/ack/dali/{gateway}: AckMessage out, one per command
//   - graylogic/request/dali/{gateway}: RequestMessage in, run as a query
//   - graylogic/response/dali/{request_id}: ResponseMessage out
//   - graylogic/bus/dali/{gateway}: FrameMessage out for every received frame
//   - graylogic/health/dali: retained HealthMessage
//
// Frames in both directions can also be written to a SQLite Journal, a CBOR
// capture file and InfluxDB.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package dalibridge
