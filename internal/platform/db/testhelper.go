package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated SQLite database in t.TempDir() and
// registers cleanup.
func OpenTestSQLite(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "authcore.sqlite")
	conn, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := Migrate(conn, DriverSQLite); err != nil {
		t.Fatalf("migrate test sqlite: %v", err)
	}
	return conn
}
