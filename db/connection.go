package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/sym"
)

// FunctionSource supplies the SQL functions registered on every connection.
// Implemented by routines.Registry.
type FunctionSource interface {
	SQLFunctions() map[string]any
}

// Options configure how a database is opened
type Options struct {
	// Attach maps schema names to database files, attached on every connection
	Attach map[string]string
	// Functions are registered on every connection. Functions added to the
	// source after Open are not visible to connections already in the pool.
	Functions FunctionSource
}

// driverSeq numbers the drivers registered by Open; sql.Register panics on reuse.
var driverSeq atomic.Int64

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	return OpenWithOptions(path, Options{}, logger)
}

// OpenWithOptions opens a SQLite database whose connections all carry the
// attached schemas and SQL functions in opts.
//
// Per-connection settings (foreign keys, busy timeout, attachments, functions)
// are applied in a ConnectHook, because database/sql pools connections and a
// PRAGMA issued through *sql.DB reaches only one of them.
func OpenWithOptions(path string, opts Options, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}

	var functions map[string]any
	if opts.Functions != nil {
		functions = opts.Functions.SQLFunctions()
	}
	attach := sortedAttachments(opts.Attach)

	driverName := fmt.Sprintf("sqlite3_evalanche_%d", driverSeq.Add(1))
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return prepareConn(conn, attach, functions)
		},
	})

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes (persistent per file)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"wal_mode", true,
			"foreign_keys", true,
			"attached", len(attach),
			"functions", len(functions),
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(path string, opts Options, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := OpenWithOptions(path, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s", path)
	}
	return db, nil
}

type attachment struct {
	schema string
	path   string
}

func sortedAttachments(m map[string]string) []attachment {
	list := make([]attachment, 0, len(m))
	for schema, path := range m {
		list = append(list, attachment{schema: schema, path: path})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].schema < list[j].schema })
	return list
}

// prepareConn applies per-connection settings to a freshly opened connection
func prepareConn(conn *sqlite3.SQLiteConn, attach []attachment, functions map[string]any) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p, nil); err != nil {
			return errors.Wrapf(err, "failed to apply %q", p)
		}
	}

	for _, a := range attach {
		if _, err := conn.Exec(fmt.Sprintf(`ATTACH DATABASE ? AS "%s"`, a.schema), []driver.Value{a.path}); err != nil {
			return errors.Wrapf(err, "failed to attach %s as %s", a.path, a.schema)
		}
	}

	for name, impl := range functions {
		// Routines call external services, so they are never deterministic
		if err := conn.RegisterFunc(name, impl, false); err != nil {
			return errors.Wrapf(err, "failed to register function %s", name)
		}
	}
	return nil
}
