package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository defines scene persistence.
type Repository interface {
	// List returns every scene ordered by name.
	List(ctx context.Context) ([]Scene, error)

	// GetByID returns ErrSceneNotFound if the scene does not exist.
	GetByID(ctx context.Context, id string) (*Scene, error)

	// Create returns ErrSceneExists on a duplicate ID.
	Create(ctx context.Context, scene *Scene) error

	// Update applies a partial update and returns the stored scene.
	Update(ctx context.Context, id string, changes Changes) (*Scene, error)

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

const selectScenes = `SELECT id, name, icon, actions, created_at, updated_at FROM scenes`

// List retrieves all scenes.
func (r *SQLiteRepository) List(ctx context.Context) ([]Scene, error) {
	rows, err := r.db.QueryContext(ctx, selectScenes+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	scenes := []Scene{}
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		scenes = append(scenes, *scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}
	return scenes, nil
}

// GetByID retrieves a scene by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Scene, error) {
	scene, err := scanScene(r.db.QueryRowContext(ctx, selectScenes+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSceneNotFound
		}
		return nil, fmt.Errorf("querying scene: %w", err)
	}
	return scene, nil
}

// Create inserts a new scene, defaulting the icon.
func (r *SQLiteRepository) Create(ctx context.Context, scene *Scene) error {
	if scene.Icon == "" {
		scene.Icon = DefaultIcon
	}
	if scene.Actions == nil {
		scene.Actions = []SceneAction{}
	}
	actionsJSON, err := json.Marshal(scene.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	now := time.Now().UTC()
	scene.Name = strings.TrimSpace(scene.Name)
	scene.CreatedAt = now
	scene.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scenes (id, name, icon, actions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.Name, scene.Icon, string(actionsJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrSceneExists
		}
		return fmt.Errorf("inserting scene: %w", err)
	}
	return nil
}

// Update builds the SET clause from the non-nil fields of changes.
func (r *SQLiteRepository) Update(ctx context.Context, id string, changes Changes) (*Scene, error) {
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
	if changes.Actions != nil {
		actionsJSON, err := json.Marshal(*changes.Actions)
		if err != nil {
			return nil, fmt.Errorf("marshalling actions: %w", err)
		}
		sets = append(sets, "actions = ?")
		args = append(args, string(actionsJSON))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	query := "UPDATE scenes SET " + strings.Join(sets, ", ") + " WHERE id = ?" // #nosec G202 -- column names are fixed
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating scene: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a scene.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting scene: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSceneNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (*Scene, error) {
	var s Scene
	var actionsJSON, createdAt, updatedAt string

	if err := row.Scan(&s.ID, &s.Name, &s.Icon, &actionsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionsJSON), &s.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}
	if s.Actions == nil {
		s.Actions = []SceneAction{}
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // zero time on malformed rows
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // zero time on malformed rows
	return &s, nil
}
