package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/evalanche/db"
	"github.com/teranos/evalanche/routines"
)

// CreateTestDB creates a migrated SQLite test database in t.TempDir().
// A file is used instead of ":memory:" because every pooled connection to an
// in-memory database sees its own empty database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return CreateTestDBWithRoutines(t, nil)
}

// CreateTestDBWithRoutines is CreateTestDB with reg's routines registered on
// every connection. A nil reg registers the built-in routines only.
func CreateTestDBWithRoutines(t *testing.T, reg *routines.Registry) *sql.DB {
	t.Helper()

	if reg == nil {
		reg = routines.NewRegistry()
		if err := routines.RegisterBuiltins(reg); err != nil {
			t.Fatalf("Failed to register built-in routines: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.OpenWithMigrations(path, db.Options{Functions: reg}, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

// Exec runs statements against conn, failing the test on the first error
func Exec(t *testing.T, conn *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}
