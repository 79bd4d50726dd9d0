// Package selection describes which rows an evaluation reads: one dataset,
// or separate expected (ground truth) and actual (inference) datasets joined
// on a key column.
package selection

import (
	"context"
	"strings"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/session"
)

const (
	// DefaultPreviewLimit is the number of rows shown by Preview
	DefaultPreviewLimit = 50

	// ConfigureLimit is the number of rows joined to discover the columns
	// available for metric parameters
	ConfigureLimit = 5
)

// Source is one dataset: either custom SQL, or a table reference with the
// columns to keep.
type Source struct {
	SQL        string   `toml:"sql" json:"sql,omitempty" yaml:"sql,omitempty"`
	Table      string   `toml:"table" json:"table,omitempty" yaml:"table,omitempty"`       // catalog.schema.table
	Columns    []string `toml:"columns" json:"columns,omitempty" yaml:"columns,omitempty"` // empty = every column
	JoinColumn string   `toml:"join_column" json:"join_column,omitempty" yaml:"join_column,omitempty"`
}

// IsZero reports whether no data is selected
func (s *Source) IsZero() bool {
	return s == nil || (strings.TrimSpace(s.SQL) == "" && strings.TrimSpace(s.Table) == "")
}

// Frame returns a lazy frame over the selected rows
func (s *Source) Frame(ctx context.Context, sess *session.Session) (*session.Frame, error) {
	if s.IsZero() {
		return nil, errors.NewInvalidRequestError("no data selected")
	}
	if strings.TrimSpace(s.SQL) != "" {
		if s.Table != "" || len(s.Columns) > 0 {
			return nil, errors.WithHint(
				errors.NewInvalidRequestError("a source takes either sql or table, not both"),
				"select columns inside the SQL query instead",
			)
		}
		return sess.SQL(ctx, s.SQL)
	}

	ref, err := session.ParseTableRef(s.Table)
	if err != nil {
		return nil, err
	}
	frame, err := sess.Table(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(s.Columns) == 0 {
		return frame, nil
	}
	return frame.Select(s.Columns...)
}

// Selection is either a single dataset, or a ground truth and an inference
// dataset joined on their join columns.
type Selection struct {
	Single    *Source `toml:"single" json:"single,omitempty" yaml:"single,omitempty"`
	Ground    *Source `toml:"ground" json:"ground,omitempty" yaml:"ground,omitempty"`
	Inference *Source `toml:"inference" json:"inference,omitempty" yaml:"inference,omitempty"`
}

// Separate reports whether expected and actual results come from separate
// datasets
func (s Selection) Separate() bool {
	return s.Ground != nil || s.Inference != nil
}

// Validate checks that every input the selection mode needs is present
func (s Selection) Validate() error {
	if !s.Separate() {
		if s.Single.IsZero() {
			return errors.NewInvalidRequestError("no data selected")
		}
		return nil
	}

	if !s.Single.IsZero() {
		return errors.WithHint(
			errors.NewInvalidRequestError("select either a single dataset or separate ground truth and inference datasets"),
			"remove [single] or both [ground] and [inference]",
		)
	}
	if s.Inference.IsZero() {
		return errors.NewInvalidRequestError("no inference data selected")
	}
	if s.Ground.IsZero() {
		return errors.NewInvalidRequestError("no ground truth data selected")
	}
	if s.Inference.JoinColumn == "" {
		return errors.NewInvalidRequestError("no inference join column selected")
	}
	if s.Ground.JoinColumn == "" {
		return errors.NewInvalidRequestError("no ground truth join column selected")
	}
	return nil
}

// Resolve validates the selection and returns a frame over its rows. For
// separate datasets this is the inner join of inference and ground truth.
// limit <= 0 means no limit.
func (s Selection) Resolve(ctx context.Context, sess *session.Session, limit int) (*session.Frame, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if !s.Separate() {
		frame, err := s.Single.Frame(ctx, sess)
		if err != nil {
			return nil, err
		}
		return frame.Limit(limit), nil
	}

	inference, err := s.Inference.Frame(ctx, sess)
	if err != nil {
		return nil, errors.Wrap(err, "inference data")
	}
	ground, err := s.Ground.Frame(ctx, sess)
	if err != nil {
		return nil, errors.Wrap(err, "ground truth data")
	}
	return sess.Join(inference, ground, s.Inference.JoinColumn, s.Ground.JoinColumn, limit)
}

// PreviewResult is the first rows of a selection
type PreviewResult struct {
	Columns []string         `json:"columns"`
	Records []session.Record `json:"records"`
	Limit   int              `json:"limit"`
}

// Preview returns at most limit rows of the selection. limit <= 0 uses
// DefaultPreviewLimit.
func (s Selection) Preview(ctx context.Context, sess *session.Session, limit int) (*PreviewResult, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	frame, err := s.Resolve(ctx, sess, limit)
	if err != nil {
		return nil, err
	}
	records, err := frame.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Columns: frame.Columns(), Records: records, Limit: limit}, nil
}

// ConfigureColumns returns the columns metric parameters can be assigned to.
// limit <= 0 uses ConfigureLimit.
func (s Selection) ConfigureColumns(ctx context.Context, sess *session.Session, limit int) ([]string, error) {
	if limit <= 0 {
		limit = ConfigureLimit
	}
	frame, err := s.Resolve(ctx, sess, limit)
	if err != nil {
		return nil, err
	}
	return frame.Columns(), nil
}
