// Package database provides SQLite connectivity for the HomeCore entity store.
//
// It manages:
//   - the connection (WAL mode, busy timeout, enforced foreign keys)
//   - versioned schema migrations read from an fs.FS
//   - constraint error classification for repositories
//
// All repositories use parameterised statements. The database file is
// chmod 0600.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql.
package database
