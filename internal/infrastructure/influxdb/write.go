package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the settings daemon.
const (
	MeasurementSettingChange = "setting_change"
	MeasurementCommand       = "settings_command"
)

// WriteSettingChange records that a setting changed. Only the size of the
// new value is stored; values may hold credentials.
func (c *Client) WriteSettingChange(id uint16, key, typ string, size int) {
	c.write(MeasurementSettingChange,
		map[string]string{"id": strconv.Itoa(int(id)), "key": key, "type": typ},
		map[string]any{"size": size})
}

// WriteCommand records one executed protocol command with the status byte
// returned to the caller and the time spent decoding, executing and answering.
func (c *Client) WriteCommand(command string, status byte, duration time.Duration) {
	c.write(MeasurementCommand,
		map[string]string{"command": command, "status": strconv.Itoa(int(status))},
		map[string]any{"duration_us": duration.Microseconds(), "ok": status == 0})
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
