package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository defines telemetry persistence.
type Repository interface {
	LogPower(ctx context.Context, r *PowerReading) error
	LatestPower(ctx context.Context, deviceID string) (*PowerReading, error)
	PowerHistory(ctx context.Context, deviceID string, since time.Time, limit int) ([]PowerReading, error)
	HourlyPower(ctx context.Context, deviceID string, since time.Time) ([]HourlyStat, error)
	DailyPower(ctx context.Context, deviceID string, since time.Time) ([]DailyStat, error)

	// CurrentPower returns the latest reading of every metered device,
	// ordered by room then device name.
	CurrentPower(ctx context.Context) ([]DevicePower, error)
	RoomPower(ctx context.Context, roomID string) (*RoomPower, error)

	LogEnvironment(ctx context.Context, r *EnvironmentReading) error

	// LatestEnvironment returns ErrNoData when the room has no readings.
	LatestEnvironment(ctx context.Context, roomID string) (*EnvironmentReading, error)

	// Cleanup deletes readings older than before from both series.
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Only devices that can meter themselves appear in power listings.
const meteredControlTypes = `('relay', 'sensor')`

// LogPower appends a power reading. A zero timestamp is stamped now.
func (r *SQLiteRepository) LogPower(ctx context.Context, p *PowerReading) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO power_logs (device_id, power_watts, voltage, current_amps, timestamp) VALUES (?, ?, ?, ?, ?)`,
		p.DeviceID, p.PowerWatts, nullFloat(p.Voltage), nullFloat(p.CurrentAmps), formatTime(p.Timestamp),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, p.DeviceID)
		}
		return fmt.Errorf("inserting power reading: %w", err)
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading power log id: %w", err)
	}
	return nil
}

const selectPower = `SELECT id, device_id, power_watts, voltage, current_amps, timestamp FROM power_logs`

// LatestPower returns the most recent reading for a device.
func (r *SQLiteRepository) LatestPower(ctx context.Context, deviceID string) (*PowerReading, error) {
	row := r.db.QueryRowContext(ctx,
		selectPower+` WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, deviceID)
	p, err := scanPower(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("querying latest power: %w", err)
	}
	return p, nil
}

// PowerHistory returns up to limit readings since the cutoff, newest first.
func (r *SQLiteRepository) PowerHistory(ctx context.Context, deviceID string, since time.Time, limit int) ([]PowerReading, error) {
	rows, err := r.db.QueryContext(ctx,
		selectPower+` WHERE device_id = ? AND timestamp >= ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		deviceID, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("querying power history: %w", err)
	}
	defer rows.Close()

	readings := []PowerReading{}
	for rows.Next() {
		p, err := scanPower(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning power reading: %w", err)
		}
		readings = append(readings, *p)
	}
	return readings, rows.Err()
}

// HourlyPower buckets readings since the cutoff by UTC hour.
func (r *SQLiteRepository) HourlyPower(ctx context.Context, deviceID string, since time.Time) ([]HourlyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour,
			AVG(power_watts), MAX(power_watts), MIN(power_watts), COUNT(*)
		FROM power_logs
		WHERE device_id = ? AND timestamp >= ?
		GROUP BY hour
		ORDER BY hour`, deviceID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying hourly power: %w", err)
	}
	defer rows.Close()

	stats := []HourlyStat{}
	for rows.Next() {
		var s HourlyStat
		if err := rows.Scan(&s.Hour, &s.AvgPower, &s.MaxPower, &s.MinPower, &s.Samples); err != nil {
			return nil, fmt.Errorf("scanning hourly power: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// DailyPower buckets readings since the cutoff by UTC date. Cost is left
// for the caller to price.
func (r *SQLiteRepository) DailyPower(ctx context.Context, deviceID string, since time.Time) ([]DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date(timestamp) AS day, AVG(power_watts), MAX(power_watts)
		FROM power_logs
		WHERE device_id = ? AND timestamp >= ?
		GROUP BY day
		ORDER BY day`, deviceID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying daily power: %w", err)
	}
	defer rows.Close()

	stats := []DailyStat{}
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.AvgPower, &s.MaxPower); err != nil {
			return nil, fmt.Errorf("scanning daily power: %w", err)
		}
		s.KWhEstimated = EstimateKWh(s.AvgPower)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// CurrentPower lists every metered device with its latest reading.
func (r *SQLiteRepository) CurrentPower(ctx context.Context) ([]DevicePower, error) {
	return r.queryDevicePower(ctx, `
		SELECT d.id, d.name, rm.name, p.power_watts, p.timestamp
		FROM devices d
		LEFT JOIN rooms rm ON rm.id = d.room_id
		LEFT JOIN (
			SELECT device_id, power_watts, timestamp,
				ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY timestamp DESC, id DESC) AS rn
			FROM power_logs
		) p ON p.device_id = d.id AND p.rn = 1
		WHERE d.control_type IN `+meteredControlTypes+`
		ORDER BY rm.sort_order IS NULL, rm.sort_order, d.name`)
}

// RoomPower sums the latest readings of a room's metered devices.
func (r *SQLiteRepository) RoomPower(ctx context.Context, roomID string) (*RoomPower, error) {
	devices, err := r.queryDevicePower(ctx, `
		SELECT d.id, d.name, rm.name, p.power_watts, p.timestamp
		FROM devices d
		LEFT JOIN rooms rm ON rm.id = d.room_id
		LEFT JOIN (
			SELECT device_id, power_watts, timestamp,
				ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY timestamp DESC, id DESC) AS rn
			FROM power_logs
		) p ON p.device_id = d.id AND p.rn = 1
		WHERE d.room_id = ? AND d.control_type IN `+meteredControlTypes+`
		ORDER BY d.name`, roomID)
	if err != nil {
		return nil, err
	}

	rp := &RoomPower{RoomID: roomID, Devices: devices}
	for _, d := range devices {
		if d.PowerWatts != nil {
			rp.TotalPowerWatts += *d.PowerWatts
		}
	}
	return rp, nil
}

func (r *SQLiteRepository) queryDevicePower(ctx context.Context, query string, args ...any) ([]DevicePower, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device power: %w", err)
	}
	defer rows.Close()

	devices := []DevicePower{}
	for rows.Next() {
		var d DevicePower
		var roomName, ts sql.NullString
		var watts sql.NullFloat64
		if err := rows.Scan(&d.DeviceID, &d.DeviceName, &roomName, &watts, &ts); err != nil {
			return nil, fmt.Errorf("scanning device power: %w", err)
		}
		if roomName.Valid {
			d.RoomName = &roomName.String
		}
		if watts.Valid {
			d.PowerWatts = &watts.Float64
		}
		if ts.Valid {
			t := parseTime(ts.String)
			d.Timestamp = &t
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// LogEnvironment appends an environment reading. A zero timestamp is
// stamped now. Readings for unknown rooms are stored unattached.
func (r *SQLiteRepository) LogEnvironment(ctx context.Context, e *EnvironmentReading) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO environment_logs (room_id, temperature, humidity, timestamp)
		VALUES ((SELECT id FROM rooms WHERE id = ?), ?, ?, ?)`,
		e.RoomID, nullFloat(e.Temperature), nullFloat(e.Humidity), formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting environment reading: %w", err)
	}
	if e.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading environment log id: %w", err)
	}
	return nil
}

// LatestEnvironment returns the room's most recent reading.
func (r *SQLiteRepository) LatestEnvironment(ctx context.Context, roomID string) (*EnvironmentReading, error) {
	var e EnvironmentReading
	var temp, hum sql.NullFloat64
	var ts string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, temperature, humidity, timestamp
		FROM environment_logs
		WHERE room_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, roomID).Scan(&e.ID, &temp, &hum, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("querying latest environment: %w", err)
	}
	e.RoomID = roomID
	if temp.Valid {
		e.Temperature = &temp.Float64
	}
	if hum.Valid {
		e.Humidity = &hum.Float64
	}
	e.Timestamp = parseTime(ts)
	return &e, nil
}

// Cleanup deletes power and environment readings older than before.
func (r *SQLiteRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)
	var total int64
	for _, table := range []string{"power_logs", "environment_logs"} {
		result, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff) // #nosec G202 -- fixed table names
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPower(row rowScanner) (*PowerReading, error) {
	var p PowerReading
	var deviceID sql.NullString
	var voltage, current sql.NullFloat64
	var ts string
	if err := row.Scan(&p.ID, &deviceID, &p.PowerWatts, &voltage, &current, &ts); err != nil {
		return nil, err
	}
	p.DeviceID = deviceID.String
	if voltage.Valid {
		p.Voltage = &voltage.Float64
	}
	if current.Valid {
		p.CurrentAmps = &current.Float64
	}
	p.Timestamp = parseTime(ts)
	return &p, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
