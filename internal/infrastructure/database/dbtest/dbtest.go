// Package dbtest opens migrated throwaway databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
	"github.com/nerrad567/homecore/migrations"
)

// Open returns a fresh file-backed database with the full schema applied.
// It is closed when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "homecore.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// Exec runs seed statements, failing the test on the first error.
func Exec(t testing.TB, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding %q: %v", stmt, err)
		}
	}
}
