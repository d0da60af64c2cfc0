// Package influxdb provides InfluxDB connectivity for settings telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring.
//
// # Measurements
//
// Every point is tagged with the node id given to Connect.
//
//   - setting_change: one point per global change notification
//     (tags id, key, type; field size)
//   - settings_command: one point per executed protocol command
//     (tags command, status; fields duration_us, ok)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Node.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteCommand("list", 0, 420*time.Microsecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
