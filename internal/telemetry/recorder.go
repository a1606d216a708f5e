package telemetry

import (
	"context"
	"errors"
	"time"
)

// Sink mirrors readings into long-term storage. *influxdb.Client
// satisfies it.
type Sink interface {
	WritePower(deviceID, roomID string, watts float64, voltage, currentAmps *float64, ts time.Time)
	WriteEnvironment(roomID string, temperature, humidity *float64, ts time.Time)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes readings to the repository and, when configured, to a
// Sink.
type Recorder struct {
	repo   Repository
	sink   Sink
	logger Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. sink may be nil.
func NewRecorder(repo Repository, sink Sink) *Recorder {
	return &Recorder{repo: repo, sink: sink, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// RecordPower stores one room message worth of readings. Readings for
// unregistered devices are skipped; the stored readings are returned.
// Only stored readings are mirrored to the sink.
func (r *Recorder) RecordPower(ctx context.Context, roomID string, readings []PowerReading) ([]PowerReading, error) {
	ts := r.now().UTC()
	stored := make([]PowerReading, 0, len(readings))
	var errs []error

	for _, reading := range readings {
		reading.Timestamp = ts
		if err := r.repo.LogPower(ctx, &reading); err != nil {
			if errors.Is(err, ErrUnknownDevice) {
				r.logger.Debug("power reading for unknown device", "device_id", reading.DeviceID, "room_id", roomID)
				continue
			}
			errs = append(errs, err)
			continue
		}
		if r.sink != nil {
			r.sink.WritePower(reading.DeviceID, roomID, reading.PowerWatts, reading.Voltage, reading.CurrentAmps, ts)
		}
		stored = append(stored, reading)
	}
	return stored, errors.Join(errs...)
}

// RecordEnvironment stores a room's temperature and humidity.
func (r *Recorder) RecordEnvironment(ctx context.Context, reading EnvironmentReading) (*EnvironmentReading, error) {
	reading.Timestamp = r.now().UTC()
	if err := r.repo.LogEnvironment(ctx, &reading); err != nil {
		return nil, err
	}
	if r.sink != nil {
		r.sink.WriteEnvironment(reading.RoomID, reading.Temperature, reading.Humidity, reading.Timestamp)
	}
	return &reading, nil
}
