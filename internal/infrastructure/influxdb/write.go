package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by HomeCore.
const (
	MeasurementPower       = "power"
	MeasurementEnvironment = "environment"
)

// WritePower records one device power reading. Voltage and current are
// optional; nil values are omitted from the point.
//
//	client.WritePower("living_light1", "living", 12.5, &volts, nil, time.Now())
func (c *Client) WritePower(deviceID, roomID string, watts float64, voltage, currentAmps *float64, ts time.Time) {
	fields := map[string]any{"power_watts": watts}
	if voltage != nil {
		fields["voltage"] = *voltage
	}
	if currentAmps != nil {
		fields["current_amps"] = *currentAmps
	}

	c.WritePointWithTime(MeasurementPower,
		map[string]string{"device_id": deviceID, "room_id": roomID},
		fields, ts)
}

// WriteEnvironment records a room temperature/humidity reading. A reading
// with neither value is dropped.
func (c *Client) WriteEnvironment(roomID string, temperature, humidity *float64, ts time.Time) {
	fields := map[string]any{}
	if temperature != nil {
		fields["temperature"] = *temperature
	}
	if humidity != nil {
		fields["humidity"] = *humidity
	}
	if len(fields) == 0 {
		return
	}

	c.WritePointWithTime(MeasurementEnvironment, map[string]string{"room_id": roomID}, fields, ts)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
