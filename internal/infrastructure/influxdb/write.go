package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// Measurement names.
const (
	MeasurementFrames = "dali_frames"
	MeasurementEngine = "dali_engine"
)

// WriteFrame records one bus frame. dir is "in" or "out".
//
// Tags are low cardinality (gateway, direction, status, length); the frame
// data and message are fields.
func (c *Client) WriteFrame(dir string, frame dali.Frame, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(framePoint(c.gateway, dir, frame, at))
}

// WriteEngineStats records a snapshot of receive statistics.
func (c *Client) WriteEngineStats(stats dali.EngineStats, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(statsPoint(c.gateway, stats, at))
}

func framePoint(gateway, dir string, frame dali.Frame, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"data":       int64(frame.Data),
		"send_twice": frame.SendTwice,
	}
	if frame.Message != "" {
		fields["message"] = frame.Message
	}
	if frame.Timestamp > 0 {
		fields["bus_timestamp"] = frame.Timestamp
	}

	return write.NewPoint(
		MeasurementFrames,
		map[string]string{
			"gateway":   gateway,
			"direction": dir,
			"status":    frame.Status.String(),
			"length":    strconv.Itoa(frame.Length),
		},
		fields,
		at,
	)
}

func statsPoint(gateway string, s dali.EngineStats, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementEngine,
		map[string]string{"gateway": gateway},
		map[string]interface{}{
			"frames_received": int64(s.FramesReceived), // #nosec G115 -- counters stay far below 2^63
			"frames_dropped":  int64(s.FramesDropped),  // #nosec G115
			"frames_flushed":  int64(s.FramesFlushed),  // #nosec G115
			"read_errors":     int64(s.ReadErrors),     // #nosec G115
			"panics":          int64(s.Panics),         // #nosec G115
			"queue_depth":     s.QueueDepth,
			"queue_capacity":  s.QueueCapacity,
			"running":         s.Running,
		},
		at,
	)
}
