package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/evalanche/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw SQLite/sql driver errors that contain "database is closed" in their message
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	// The sql package returns its own unexported error for this
	return strings.Contains(err.Error(), "database is closed")
}

// IsConstraintError reports whether err is a SQLite constraint violation
// (NOT NULL, UNIQUE, CHECK, FOREIGN KEY).
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// IsBusyError reports whether err is a transient SQLITE_BUSY or SQLITE_LOCKED
// failure that may succeed on retry.
func IsBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// IsSchemaError reports whether err means the target table cannot hold the
// row being written: a constraint violation, a datatype mismatch, an unknown
// column or a missing table.
func IsSchemaError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code {
	case sqlite3.ErrConstraint, sqlite3.ErrMismatch:
		return true
	case sqlite3.ErrError:
		msg := sqliteErr.Error()
		return strings.Contains(msg, "column") || strings.Contains(msg, "no such table")
	}
	return false
}
