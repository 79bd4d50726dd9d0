package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Run is the record of one pipeline execution
type Run struct {
	ID           string     `json:"id"`
	Routine      string     `json:"routine"`
	Input        string     `json:"input"`
	Output       string     `json:"output"`
	State        State      `json:"state"`
	Batches      int        `json:"batches"`       // batches fully joined and appended
	RowsRead     int        `json:"rows_read"`     // rows fetched from the source
	RowsAppended int        `json:"rows_appended"` // rows written to the output table
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewRun creates an IDLE run
func NewRun(routine, input, output string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.NewString(),
		Routine:   routine,
		Input:     input,
		Output:    output,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// transition moves the run to next, refusing illegal transitions
func (r *Run) transition(next State) error {
	if err := checkTransition(r.State, next); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.State = next
	r.UpdatedAt = now
	if next.IsTerminal() {
		r.FinishedAt = &now
	}
	return nil
}

// fail moves the run to FAILED and records err
func (r *Run) fail(err error) {
	if r.State.IsTerminal() {
		return
	}
	r.Error = err.Error()
	_ = r.transition(StateFailed)
}

// Duration returns how long the run took, or has taken so far
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
