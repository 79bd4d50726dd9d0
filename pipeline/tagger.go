package pipeline

import (
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/session"
)

// ErrRowIDExists is returned by TagRows when the source already has a column
// with the identifier's name.
var ErrRowIDExists = errors.New("row identifier column already exists")

// TagRows returns a frame equal to src with a leading column holding a unique
// integer per row, numbered from 1. Row count and values are unchanged.
//
// Identifiers are assigned while the frame is read, so they are unique and
// stable within one read of the tagged frame; a run reads it exactly once.
func TagRows(src *session.Frame, column string) (*session.Frame, error) {
	if column == "" {
		return nil, errors.NewConfigurationError("row identifier column name is empty")
	}
	if src.HasColumn(column) {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrapf(ErrRowIDExists, "column %q", column), errors.ErrConfiguration),
			"rename the source column or set pipeline.row_id_column",
		)
	}

	query := "SELECT ROW_NUMBER() OVER () AS " + session.QuoteIdent(column) +
		", src.* FROM (" + src.SQL() + ") AS src"
	columns := append([]string{column}, src.Columns()...)
	return src.Derive(query, columns), nil
}
