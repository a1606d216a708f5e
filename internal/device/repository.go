package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository defines device persistence.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns every device ordered by room sort order, type, then name.
	// Unassigned devices sort last.
	List(ctx context.Context) ([]Device, error)

	ListByRoom(ctx context.Context, roomID string) ([]Device, error)
	ListByType(ctx context.Context, t Type) ([]Device, error)

	// Create returns ErrDeviceExists on a duplicate ID and ErrInvalidDevice
	// when the referenced room does not exist.
	Create(ctx context.Context, device *Device) error

	// Update writes the profile fields. State, is_online and last_seen are
	// owned by the reconciler and SetOnline and are not touched.
	Update(ctx context.Context, device *Device) error

	Delete(ctx context.Context, id string) error

	// SaveState replaces the stored state and marks the device online and
	// seen at seenAt, in one statement.
	SaveState(ctx context.Context, id string, state State, seenAt time.Time) error

	SetOnline(ctx context.Context, id string, online bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevices = `
	SELECT d.id, d.room_id, r.name, d.name, d.type, d.control_type, d.gpio_pin,
		d.mqtt_topic_base, d.ir_codes, d.config, d.state, d.is_online, d.last_seen,
		d.created_at, d.updated_at
	FROM devices d
	LEFT JOIN rooms r ON r.id = d.room_id`

const orderDevices = `
	ORDER BY r.sort_order IS NULL, r.sort_order, d.type, d.name`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevices+` WHERE d.id = ?`, id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+orderDevices)
}

// ListByRoom retrieves all devices in a room.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomID string) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+` WHERE d.room_id = ?`+orderDevices, roomID)
}

// ListByType retrieves all devices of one type.
func (r *SQLiteRepository) ListByType(ctx context.Context, t Type) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+` WHERE d.type = ?`+orderDevices, string(t))
}

// Create inserts a new device. An empty TopicBase is derived from the
// room and ID, and a nil State or Config is stored as {}.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.TopicBase == "" {
		device.TopicBase = DefaultTopicBase(device.RoomID, device.ID)
	}
	if device.State == nil {
		device.State = State{}
	}
	if device.Config == nil {
		device.Config = Config{}
	}

	configJSON, stateJSON, irJSON, err := marshalDeviceJSON(device)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, room_id, name, type, control_type, gpio_pin, mqtt_topic_base,
			ir_codes, config, state, is_online, last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		nullableString(device.RoomID),
		device.Name,
		string(device.Type),
		string(device.ControlType),
		nullableInt(device.GPIOPin),
		device.TopicBase,
		irJSON,
		configJSON,
		stateJSON,
		boolToInt(device.IsOnline),
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return ErrDeviceExists
		case database.IsForeignKeyViolation(err):
			return fmt.Errorf("%w: room %q does not exist", ErrInvalidDevice, derefString(device.RoomID))
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies the profile of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	configJSON, _, irJSON, err := marshalDeviceJSON(device)
	if err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			room_id = ?, name = ?, type = ?, control_type = ?, gpio_pin = ?,
			mqtt_topic_base = ?, ir_codes = ?, config = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(device.RoomID),
		device.Name,
		string(device.Type),
		string(device.ControlType),
		nullableInt(device.GPIOPin),
		device.TopicBase,
		irJSON,
		configJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: room %q does not exist", ErrInvalidDevice, derefString(device.RoomID))
		}
		return fmt.Errorf("updating device: %w", err)
	}

	return requireOneRow(result)
}

// Delete removes a device by ID. Its schedules go with it.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

// SaveState stores the full merged state.
func (r *SQLiteRepository) SaveState(ctx context.Context, id string, state State, seenAt time.Time) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	ts := seenAt.UTC().Format(time.RFC3339)
	query := `
		UPDATE devices
		SET state = ?, is_online = 1, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(stateJSON), ts, ts, id)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireOneRow(result)
}

// SetOnline flips the online flag without touching state.
func (r *SQLiteRepository) SetOnline(ctx context.Context, id string, online bool) error {
	query := `UPDATE devices SET is_online = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		boolToInt(online), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating device online flag: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is implemented by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var roomID, roomName, irJSON, lastSeen sql.NullString
	var gpioPin sql.NullInt64
	var deviceType, controlType, configJSON, stateJSON string
	var createdAt, updatedAt string
	var isOnline int

	err := scanner.Scan(
		&d.ID, &roomID, &roomName, &d.Name, &deviceType, &controlType, &gpioPin,
		&d.TopicBase, &irJSON, &configJSON, &stateJSON, &isOnline, &lastSeen,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = Type(deviceType)
	d.ControlType = ControlType(controlType)
	d.IsOnline = isOnline != 0

	if roomID.Valid {
		d.RoomID = &roomID.String
	}
	if roomName.Valid {
		d.RoomName = &roomName.String
	}
	if gpioPin.Valid {
		pin := int(gpioPin.Int64)
		d.GPIOPin = &pin
	}

	if err := json.Unmarshal([]byte(configJSON), &d.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if d.State == nil {
		d.State = State{}
	}
	if irJSON.Valid && irJSON.String != "" {
		if err := json.Unmarshal([]byte(irJSON.String), &d.IRCodes); err != nil {
			return nil, fmt.Errorf("unmarshalling ir_codes: %w", err)
		}
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		d.LastSeen = &t
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

func marshalDeviceJSON(d *Device) (configJSON, stateJSON string, irJSON sql.NullString, err error) {
	cfg := d.Config
	if cfg == nil {
		cfg = Config{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", "", sql.NullString{}, fmt.Errorf("marshalling config: %w", err)
	}
	configJSON = string(b)

	state := d.State
	if state == nil {
		state = State{}
	}
	if b, err = json.Marshal(state); err != nil {
		return "", "", sql.NullString{}, fmt.Errorf("marshalling state: %w", err)
	}
	stateJSON = string(b)

	if d.IRCodes != nil {
		if b, err = json.Marshal(d.IRCodes); err != nil {
			return "", "", sql.NullString{}, fmt.Errorf("marshalling ir_codes: %w", err)
		}
		irJSON = sql.NullString{String: string(b), Valid: true}
	}
	return configJSON, stateJSON, irJSON, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
