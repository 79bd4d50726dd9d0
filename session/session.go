// Package session is the analytical database session that data selection and
// pipeline runs work against.
//
// A Session wraps a SQLite database whose attached databases act as schemas of
// a single named catalog, so sources and outputs are addressed with three-part
// catalog.schema.table references. Routines are SQL functions registered on
// every connection of the session.
//
// The session is safe for concurrent use; database/sql pools connections and
// every connection carries the same attachments and routines.
package session

import (
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/routines"
)

// DefaultBatchSize is used when Options.BatchSize is zero
const DefaultBatchSize = 1000

// Options configure a Session
type Options struct {
	Catalog   string             // first part of three-part references
	BatchSize int                // rows per batch returned by Frame.Batches
	Routines  *routines.Registry // routines registered on db's connections
	Logger    *zap.SugaredLogger
}

// Session is an explicit handle on the analytical database
type Session struct {
	db        *sql.DB
	catalog   string
	batchSize int
	routines  *routines.Registry
	logger    *zap.SugaredLogger
}

// New creates a session over db. db must have been opened with the same
// routine registry (see db.OpenWithOptions) for Call to reach the routines.
func New(db *sql.DB, opts Options) *Session {
	if opts.Catalog == "" {
		opts.Catalog = "EVAL"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Routines == nil {
		opts.Routines = routines.NewRegistry()
	}
	return &Session{
		db:        db,
		catalog:   opts.Catalog,
		batchSize: opts.BatchSize,
		routines:  opts.Routines,
		logger:    logger.OrNop(opts.Logger),
	}
}

// DB returns the underlying database
func (s *Session) DB() *sql.DB {
	return s.db
}

// Catalog returns the catalog name of the session
func (s *Session) Catalog() string {
	return s.catalog
}

// BatchSize returns the number of rows per fetched batch
func (s *Session) BatchSize() int {
	return s.batchSize
}

// Ref builds a reference in the session's catalog
func (s *Session) Ref(schema, table string) TableRef {
	return TableRef{Catalog: s.catalog, Schema: schema, Table: table}
}

// checkCatalog verifies that catalog names this session's catalog
func (s *Session) checkCatalog(catalog string) error {
	if !strings.EqualFold(catalog, s.catalog) {
		return errors.WithHintf(
			errors.NewNotFoundError("catalog %q not found", catalog),
			"this session's catalog is %s", s.catalog,
		)
	}
	return nil
}

// qualified returns the SQL name of ref after checking its catalog
func (s *Session) qualified(ref TableRef) (string, error) {
	if err := s.checkCatalog(ref.Catalog); err != nil {
		return "", err
	}
	return QuoteIdent(ref.Schema) + "." + QuoteIdent(ref.Table), nil
}
