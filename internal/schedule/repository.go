package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository defines schedule persistence.
type Repository interface {
	// List returns all schedules, enabled first, then by name.
	List(ctx context.Context) ([]Schedule, error)
	ListByDevice(ctx context.Context, deviceID string) ([]Schedule, error)
	ListEnabled(ctx context.Context) ([]Schedule, error)

	// GetByID returns ErrScheduleNotFound if the schedule does not exist.
	GetByID(ctx context.Context, id int64) (*Schedule, error)

	// Create assigns s.ID. A missing device yields device.ErrDeviceNotFound.
	Create(ctx context.Context, s *Schedule) error
	Update(ctx context.Context, s *Schedule) error

	// Toggle flips the enabled flag and returns the stored schedule.
	Toggle(ctx context.Context, id int64) (*Schedule, error)
	Delete(ctx context.Context, id int64) error
	SetLastRun(ctx context.Context, id int64, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectSchedules = `
	SELECT s.id, s.device_id, d.name, d.room_id, r.name, s.name, s.cron_expression,
		s.action, s.enabled, s.last_run, s.created_at, s.updated_at
	FROM schedules s
	LEFT JOIN devices d ON d.id = s.device_id
	LEFT JOIN rooms r ON r.id = d.room_id`

// List retrieves all schedules.
func (r *SQLiteRepository) List(ctx context.Context) ([]Schedule, error) {
	return r.query(ctx, selectSchedules+` ORDER BY s.enabled DESC, s.name`)
}

// ListByDevice retrieves the schedules of one device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Schedule, error) {
	return r.query(ctx, selectSchedules+` WHERE s.device_id = ? ORDER BY s.name`, deviceID)
}

// ListEnabled retrieves the schedules the scheduler should register.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Schedule, error) {
	return r.query(ctx, selectSchedules+` WHERE s.enabled = 1 ORDER BY s.id`)
}

// GetByID retrieves a schedule by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, selectSchedules+` WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule: %w", err)
	}
	return s, nil
}

// Create inserts a new schedule.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule) error {
	actionJSON, err := json.Marshal(s.Action)
	if err != nil {
		return fmt.Errorf("marshalling action: %w", err)
	}

	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.CronExpression = strings.TrimSpace(s.CronExpression)

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (device_id, name, cron_expression, action, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.DeviceID, strings.TrimSpace(s.Name), s.CronExpression, string(actionJSON),
		boolToInt(s.Enabled), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, s.DeviceID)
		}
		return fmt.Errorf("inserting schedule: %w", err)
	}

	if s.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading schedule id: %w", err)
	}
	return nil
}

// Update writes every editable field of s.
func (r *SQLiteRepository) Update(ctx context.Context, s *Schedule) error {
	actionJSON, err := json.Marshal(s.Action)
	if err != nil {
		return fmt.Errorf("marshalling action: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET device_id = ?, name = ?, cron_expression = ?, action = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		s.DeviceID, strings.TrimSpace(s.Name), s.CronExpression, string(actionJSON),
		boolToInt(s.Enabled), s.UpdatedAt.Format(time.RFC3339), s.ID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, s.DeviceID)
		}
		return fmt.Errorf("updating schedule: %w", err)
	}
	return requireOneRow(result)
}

// Toggle flips the enabled flag.
func (r *SQLiteRepository) Toggle(ctx context.Context, id int64) (*Schedule, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = 1 - enabled, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("toggling schedule: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a schedule.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return requireOneRow(result)
}

// SetLastRun records when the schedule last fired.
func (r *SQLiteRepository) SetLastRun(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET last_run = ? WHERE id = ?`, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last run: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	schedules := []Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return schedules, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var s Schedule
	var deviceName, roomID, roomName, lastRun sql.NullString
	var actionJSON, createdAt, updatedAt string
	var enabled int

	if err := row.Scan(&s.ID, &s.DeviceID, &deviceName, &roomID, &roomName, &s.Name,
		&s.CronExpression, &actionJSON, &enabled, &lastRun, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actionJSON), &s.Action); err != nil {
		return nil, fmt.Errorf("unmarshalling action: %w", err)
	}
	s.Enabled = enabled != 0
	if deviceName.Valid {
		s.DeviceName = &deviceName.String
	}
	if roomID.Valid {
		s.RoomID = &roomID.String
	}
	if roomName.Valid {
		s.RoomName = &roomName.String
	}
	if lastRun.Valid {
		if t, err := time.Parse(time.RFC3339, lastRun.String); err == nil {
			s.LastRun = &t
		}
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // zero time on malformed rows
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // zero time on malformed rows
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
