package bridge

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/telemetry"
)

// Keys in a room power message that are not device readings.
const (
	powerKeyTotal   = "total"
	powerKeyVoltage = "voltage"
	powerKeyCurrent = "current"
)

// DeviceID joins a room and a device topic segment into a device ID.
func DeviceID(room, dev string) string {
	return room + "_" + dev
}

func decodeObject(payload []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}
	return obj, nil
}

func decodeStatus(payload []byte) (device.State, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}
	return device.State(obj), nil
}

// decodePower turns a room power message into one reading per numeric key.
// Readings are ordered by device ID.
func decodePower(room string, payload []byte) ([]telemetry.PowerReading, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	voltage := number(obj[powerKeyVoltage])
	current := number(obj[powerKeyCurrent])

	keys := make([]string, 0, len(obj))
	for k := range obj {
		switch k {
		case powerKeyTotal, powerKeyVoltage, powerKeyCurrent:
			continue
		}
		if number(obj[k]) != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	readings := make([]telemetry.PowerReading, 0, len(keys))
	for _, k := range keys {
		readings = append(readings, telemetry.PowerReading{
			DeviceID:    DeviceID(room, k),
			PowerWatts:  *number(obj[k]),
			Voltage:     voltage,
			CurrentAmps: current,
		})
	}
	return readings, nil
}

func decodeEnvironment(room string, payload []byte) (telemetry.EnvironmentReading, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return telemetry.EnvironmentReading{}, err
	}
	reading := telemetry.EnvironmentReading{
		RoomID:      room,
		Temperature: number(obj["temperature"]),
		Humidity:    number(obj["humidity"]),
	}
	if reading.Temperature == nil && reading.Humidity == nil {
		return telemetry.EnvironmentReading{}, fmt.Errorf("%w: no temperature or humidity", ErrInvalidPayload)
	}
	return reading, nil
}

func number(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
