package session

import (
	"context"
	"strings"

	"github.com/teranos/evalanche/db"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
)

// CreateTable creates ref with the given columns, typed by SQLite affinity
// only. It fails if the table already exists.
func (s *Session) CreateTable(ctx context.Context, ref TableRef, columns []string) error {
	name, err := s.qualified(ref)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return errors.NewInvalidRequestError("table %s needs at least one column", ref)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = QuoteIdent(c)
	}
	query := "CREATE TABLE " + name + " (" + strings.Join(defs, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrapf(err, "failed to create table %s", ref)
	}

	s.logger.Infow("Created table", logger.FieldTable, ref.String(), "columns", len(columns))
	return nil
}

// TableExists reports whether ref exists
func (s *Session) TableExists(ctx context.Context, ref TableRef) (bool, error) {
	_, err := s.Columns(ctx, ref)
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	return err == nil, err
}

// Append inserts records into ref in one transaction: either every record is
// appended or none is. The table is never created, truncated or dropped.
// Each record must carry exactly columns, in order. A table that cannot hold
// the rows yields an error marked ErrSchemaMismatch.
func (s *Session) Append(ctx context.Context, ref TableRef, columns []string, records []Record) (err error) {
	name, err := s.qualified(ref)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
		marks[i] = "?"
	}
	query := "INSERT INTO " + name + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin append")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return schemaMismatch(err, ref)
	}
	defer stmt.Close()

	for i, rec := range records {
		if rec.Len() != len(columns) {
			return errors.AssertionFailedf("record %d has %d fields, want %d", i, rec.Len(), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, rec.Values()...); err != nil {
			return schemaMismatch(err, ref)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit append to %s", ref)
	}
	return nil
}

// schemaMismatch marks an insert failure as a schema mismatch with ref when
// SQLite rejected the rows themselves. Busy, cancelled and other failures are
// only wrapped.
func schemaMismatch(err error, ref TableRef) error {
	if !db.IsSchemaError(err) {
		return errors.Wrapf(err, "failed to append to %s", ref)
	}
	return errors.WithHint(
		errors.Mark(errors.Wrapf(err, "output table %s cannot hold the rows", ref), errors.ErrSchemaMismatch),
		"the output table needs every source column plus the response column",
	)
}
