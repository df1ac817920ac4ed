// Package influxdb records DALI bus telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - dali_frames: one point per frame sent or received, tagged by gateway,
//     direction, status and length
//   - dali_engine: periodic receive statistics (queue depth, drops, errors)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Gateway.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFrame("in", frame, time.Now())
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Asynchronous write failures are delivered to SetOnError.
package influxdb
