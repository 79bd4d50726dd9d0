package session

import (
	"context"
	"strings"

	"github.com/teranos/evalanche/errors"
)

// Column describes one column of a table
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// internalTables are bookkeeping tables hidden from table listings
var internalTables = map[string]bool{
	"schema_migrations": true,
	"pipeline_runs":     true,
	"ai_model_usage":    true,
}

// Schemas lists the schemas of the session's catalog: the main database and
// every attached database.
func (s *Session) Schemas(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_database_list ORDER BY seq")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schemas")
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema")
		}
		if name == "temp" {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, errors.Wrap(rows.Err(), "failed to list schemas")
}

// Tables lists the tables and views of catalog.schema
func (s *Session) Tables(ctx context.Context, catalog, schema string) ([]string, error) {
	if err := s.checkCatalog(catalog); err != nil {
		return nil, err
	}
	if err := s.checkSchema(ctx, schema); err != nil {
		return nil, err
	}

	query := `SELECT name FROM ` + QuoteIdent(schema) + `.sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tables of %s.%s", catalog, schema)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan table name")
		}
		if schema == "main" && internalTables[name] {
			continue
		}
		tables = append(tables, name)
	}
	return tables, errors.Wrap(rows.Err(), "failed to list tables")
}

// Columns describes the columns of ref in declaration order
func (s *Session) Columns(ctx context.Context, ref TableRef) ([]Column, error) {
	if err := s.checkCatalog(ref.Catalog); err != nil {
		return nil, err
	}
	if err := s.checkSchema(ctx, ref.Schema); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?, ?) ORDER BY cid`,
		ref.Table, ref.Schema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to describe %s", ref)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, errors.Wrap(err, "failed to scan column")
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk != 0
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to describe %s", ref)
	}
	if len(columns) == 0 {
		return nil, errors.NewNotFoundError("table %s not found", ref)
	}
	return columns, nil
}

// Routines lists the routines callable through this session
func (s *Session) Routines() []string {
	return s.routines.Names()
}

func (s *Session) checkSchema(ctx context.Context, schema string) error {
	schemas, err := s.Schemas(ctx)
	if err != nil {
		return err
	}
	for _, name := range schemas {
		if strings.EqualFold(name, schema) {
			return nil
		}
	}
	return errors.WithHintf(
		errors.NewNotFoundError("schema %q not found in catalog %s", schema, s.catalog),
		"available schemas: %s", strings.Join(schemas, ", "),
	)
}
