package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
)

// Frame is a lazy, read-only query over the session. Nothing is read until
// Collect, Count or Batches is called.
type Frame struct {
	s       *Session
	query   string
	columns []string
}

// SQL validates query and returns a frame over it. The query is probed for
// its columns without reading any rows.
func (s *Session) SQL(ctx context.Context, query string) (*Frame, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimRight(query, ";"))
	if query == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("SQL query is empty"),
			"enter a SELECT statement",
		)
	}

	columns, err := s.probeColumns(ctx, query)
	if err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrap(err, "invalid SQL query"), errors.ErrInvalidRequest),
			"the query must be a single SELECT statement",
		)
	}
	return &Frame{s: s, query: query, columns: columns}, nil
}

// Table returns a frame over every row of ref
func (s *Session) Table(ctx context.Context, ref TableRef) (*Frame, error) {
	name, err := s.qualified(ref)
	if err != nil {
		return nil, err
	}
	cols, err := s.Columns(ctx, ref)
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(cols))
	for i, c := range cols {
		columns[i] = c.Name
	}
	return &Frame{s: s, query: "SELECT * FROM " + name, columns: columns}, nil
}

func (s *Session) probeColumns(ctx context.Context, query string) ([]string, error) {
	s.logger.Debugw("Probing query", logger.FieldQuery, query)
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM ("+query+") AS src LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return columns, rows.Err()
}

// Session returns the session the frame belongs to
func (f *Frame) Session() *Session {
	return f.s
}

// Columns returns the column names of the frame in order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// HasColumn reports whether the frame has a column named name
// (case-insensitive).
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.column(name)
	return ok
}

func (f *Frame) column(name string) (string, bool) {
	for _, c := range f.columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// SQL returns the source SQL of the frame, for reuse elsewhere
func (f *Frame) SQL() string {
	return f.query
}

// Derive returns a frame over query, which is built on f.SQL() and yields
// columns. The query is not probed.
func (f *Frame) Derive(query string, columns []string) *Frame {
	return &Frame{s: f.s, query: query, columns: append([]string(nil), columns...)}
}

// Select narrows the frame to the named columns, in the given order
func (f *Frame) Select(columns ...string) (*Frame, error) {
	if len(columns) == 0 {
		return nil, errors.NewInvalidRequestError("no columns selected")
	}
	resolved := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, name := range columns {
		c, ok := f.column(name)
		if !ok {
			return nil, errors.WithHintf(
				errors.NewNotFoundError("column %q not found", name),
				"available columns: %s", strings.Join(f.columns, ", "),
			)
		}
		resolved[i] = c
		quoted[i] = "src." + QuoteIdent(c)
	}
	query := "SELECT " + strings.Join(quoted, ", ") + " FROM (" + f.query + ") AS src"
	return f.Derive(query, resolved), nil
}

// Limit returns a frame over at most n rows of f. n <= 0 means no limit.
func (f *Frame) Limit(n int) *Frame {
	if n <= 0 {
		return f
	}
	return f.Derive(fmt.Sprintf("SELECT * FROM (%s) AS src LIMIT %d", f.query, n), f.columns)
}

// Count returns the number of rows of the frame
func (f *Frame) Count(ctx context.Context) (int64, error) {
	var n int64
	err := f.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+f.query+") AS src").Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count rows")
	}
	return n, nil
}

// Collect reads every row of the frame
func (f *Frame) Collect(ctx context.Context) ([]Record, error) {
	rows, err := f.run(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows, f.columns)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read rows")
	}
	return records, nil
}

func (f *Frame) run(ctx context.Context) (*sql.Rows, error) {
	f.s.logger.Debugw("Running query", logger.FieldQuery, f.query)
	rows, err := f.s.db.QueryContext(ctx, f.query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run query")
	}
	return rows, nil
}

// scanRecord reads the current row into a record named by columns
func scanRecord(rows *sql.Rows, columns []string) (Record, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return Record{}, errors.Wrap(err, "failed to scan row")
	}
	fields := make([]Field, len(columns))
	for i, name := range columns {
		fields[i] = Field{Name: name, Value: normalizeValue(values[i])}
	}
	return Record{fields: fields}, nil
}
