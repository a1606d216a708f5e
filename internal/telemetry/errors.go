package telemetry

import "errors"

var (
	// ErrNoData is returned when a device has no readings.
	ErrNoData = errors.New("telemetry: no data")

	// ErrUnknownDevice is returned when a power reading names a device
	// that is not registered.
	ErrUnknownDevice = errors.New("telemetry: unknown device")
)
