package pipeline

import (
	"context"
	"database/sql"

	"github.com/teranos/evalanche/errors"
)

// Store handles persistence of pipeline runs in the pipeline_runs table
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const runColumns = `id, routine, input, output, state, batches, rows_read, rows_appended,
	error, started_at, updated_at, finished_at`

// Create inserts a new run
func (s *Store) Create(ctx context.Context, run *Run) error {
	query := `INSERT INTO pipeline_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Routine,
		run.Input,
		run.Output,
		string(run.State),
		run.Batches,
		run.RowsRead,
		run.RowsAppended,
		nullString(run.Error),
		run.StartedAt,
		run.UpdatedAt,
		run.FinishedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// Update saves the mutable fields of run
func (s *Store) Update(ctx context.Context, run *Run) error {
	query := `UPDATE pipeline_runs
		SET state = ?, batches = ?, rows_read = ?, rows_appended = ?,
			error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(run.State),
		run.Batches,
		run.RowsRead,
		run.RowsAppended,
		nullString(run.Error),
		run.UpdatedAt,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update run")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update run")
	}
	if n == 0 {
		return errors.NewNotFoundError("run not found: %s", run.ID)
	}
	return nil
}

// Get retrieves a run by ID
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return run, nil
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var state string
	var errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Routine,
		&run.Input,
		&run.Output,
		&state,
		&run.Batches,
		&run.RowsRead,
		&run.RowsAppended,
		&errMsg,
		&run.StartedAt,
		&run.UpdatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if !IsValidState(state) {
		return nil, errors.Newf("run %s has unknown state %q", run.ID, state)
	}
	run.State = State(state)
	run.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
