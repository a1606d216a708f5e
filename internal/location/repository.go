package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository defines room persistence.
type Repository interface {
	// List returns rooms ordered by sort_order, then name, with device counts.
	List(ctx context.Context) ([]Room, error)

	// GetByID returns ErrRoomNotFound if the room does not exist.
	GetByID(ctx context.Context, id string) (*Room, error)

	// Create returns ErrRoomExists on a duplicate ID.
	Create(ctx context.Context, room *Room) error

	// Update applies a partial update and returns the stored room.
	Update(ctx context.Context, id string, changes Changes) (*Room, error)

	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectRooms = `
	SELECT r.id, r.name, r.icon, r.sort_order,
		(SELECT COUNT(*) FROM devices d WHERE d.room_id = r.id),
		(SELECT COUNT(*) FROM devices d WHERE d.room_id = r.id AND json_extract(d.state, '$.on') = 1),
		r.created_at, r.updated_at
	FROM rooms r`

// List retrieves all rooms.
func (r *SQLiteRepository) List(ctx context.Context) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, selectRooms+` ORDER BY r.sort_order, r.name`)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return rooms, nil
}

// GetByID retrieves a room with its device counts.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, selectRooms+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return room, nil
}

// Create inserts a new room. An empty icon becomes DefaultIcon.
func (r *SQLiteRepository) Create(ctx context.Context, room *Room) error {
	if room.Icon == "" {
		room.Icon = DefaultIcon
	}

	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, icon, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, strings.TrimSpace(room.Name), room.Icon, room.SortOrder,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrRoomExists
		}
		return fmt.Errorf("inserting room: %w", err)
	}
	return nil
}

// Update builds the SET clause from the non-nil fields of changes.
func (r *SQLiteRepository) Update(ctx context.Context, id string, changes Changes) (*Room, error) {
	if changes.Empty() {
		return r.GetByID(ctx, id)
	}

	var sets []string
	var args []any
	if changes.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*changes.Name))
	}
	if changes.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *changes.Icon)
	}
	if changes.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *changes.SortOrder)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	query := "UPDATE rooms SET " + strings.Join(sets, ", ") + " WHERE id = ?" // #nosec G202 -- column names are fixed
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating room: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrRoomNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a room. Its devices are unassigned by the schema.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*Room, error) {
	var room Room
	var createdAt, updatedAt string
	if err := row.Scan(&room.ID, &room.Name, &room.Icon, &room.SortOrder,
		&room.DeviceCount, &room.DevicesOn, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	room.CreatedAt = parseTime(createdAt)
	room.UpdatedAt = parseTime(updatedAt)
	return &room, nil
}

// parseTime parses an RFC3339 timestamp from SQLite. A malformed value
// yields the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
