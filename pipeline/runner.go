package pipeline

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/session"
)

// Config configures a Runner
type Config struct {
	BatchSize      int // rows per batch; 0 = session default
	Workers        int // concurrent calls per batch; 0 = logical CPU count
	RowIDColumn    string
	ResponseColumn string
	MaxRetries     int
	RetryBackoff   time.Duration
}

// ConfigFrom converts the [pipeline] configuration section
func ConfigFrom(pc am.PipelineConfig) Config {
	return Config{
		BatchSize:      pc.BatchSize,
		Workers:        pc.Workers,
		RowIDColumn:    pc.RowIDColumn,
		ResponseColumn: pc.ResponseColumn,
		MaxRetries:     pc.MaxRetries,
		RetryBackoff:   time.Duration(pc.RetryBackoffMS) * time.Millisecond,
	}
}

// Request names what one run processes
type Request struct {
	Routine string         // routine to call once per source row
	Source  *session.Frame // rows to process
	Input   string         // label stored with the run; defaults to the source SQL
	Output  session.TableRef
}

// Runner drives pipeline runs: tag the source, then fetch, invoke, join and
// append batch by batch until the source is exhausted or a step fails.
type Runner struct {
	session  *session.Session
	store    *Store
	invoker  *Invoker
	appender *Appender
	cfg      Config
	logger   *zap.SugaredLogger
}

// NewRunner creates a runner over s. store may be nil, in which case runs are
// not persisted.
func NewRunner(s *session.Session, store *Store, cfg Config, log *zap.SugaredLogger) *Runner {
	log = logger.OrNop(log).With(logger.FieldComponent, "pipeline")
	if cfg.RowIDColumn == "" {
		cfg.RowIDColumn = am.DefaultRowIDColumn
	}
	if cfg.ResponseColumn == "" {
		cfg.ResponseColumn = am.DefaultResponseColumn
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = s.BatchSize()
	}

	return &Runner{
		session: s,
		store:   store,
		invoker: NewInvoker(s, InvokerOptions{
			Workers:      cfg.Workers,
			RowIDColumn:  cfg.RowIDColumn,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       log,
		}),
		appender: NewAppender(s, log),
		cfg:      cfg,
		logger:   log,
	}
}

// Workers returns the concurrency bound used for each batch
func (r *Runner) Workers() int {
	return r.invoker.Workers()
}

// Run executes req to completion.
//
// Configuration errors (unknown routine, missing or incompatible output
// table, identifier or response column clashing with a source column) are
// returned before a run exists, with a nil Run.
//
// Any later failure ends the run in FAILED and is returned together with the
// run. Batches appended before the failure stay in the output table; the
// failing batch contributes no rows. Output is always appended, so running
// the same request twice writes every row twice.
func (r *Runner) Run(ctx context.Context, req Request) (*Run, error) {
	routine, tagged, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	input := req.Input
	if input == "" {
		input = req.Source.SQL()
	}
	run := NewRun(routine, input, req.Output.String())
	log := logger.LoggerFromContext(logger.WithRunID(ctx, run.ID), r.logger)

	if r.store != nil {
		if err := r.store.Create(ctx, run); err != nil {
			return nil, err
		}
	}

	log.Infow("Starting run",
		logger.FieldRoutine, routine,
		logger.FieldOutput, run.Output,
		logger.FieldBatchSize, r.cfg.BatchSize,
		logger.FieldWorkers, r.invoker.Workers(),
	)

	if err := r.execute(ctx, run, tagged, req.Output, log); err != nil {
		run.fail(err)
		r.save(ctx, run, log)
		log.Errorw("Run failed",
			logger.FieldState, run.State,
			logger.FieldBatch, run.Batches,
			logger.FieldRows, run.RowsAppended,
			logger.FieldError, err,
		)
		return run, err
	}

	log.Infow("Run finished",
		logger.FieldBatch, run.Batches,
		logger.FieldRows, run.RowsAppended,
		logger.FieldDurationMS, run.Duration().Milliseconds(),
	)
	return run, nil
}

// prepare checks req and returns the resolved routine name and tagged source
func (r *Runner) prepare(ctx context.Context, req Request) (string, *session.Frame, error) {
	routine, err := r.session.ResolveRoutine(req.Routine)
	if err != nil {
		return "", nil, err
	}
	if req.Source == nil {
		return "", nil, errors.NewConfigurationError("no input data selected")
	}
	if req.Output.IsZero() {
		return "", nil, errors.NewConfigurationError("no output table selected")
	}
	if req.Source.HasColumn(r.cfg.ResponseColumn) {
		return "", nil, errors.WithHint(
			errors.NewConfigurationError("source already has a %q column", r.cfg.ResponseColumn),
			"rename the source column or set pipeline.response_column",
		)
	}

	tagged, err := TagRows(req.Source, r.cfg.RowIDColumn)
	if err != nil {
		return "", nil, err
	}
	if err := r.checkOutput(ctx, req.Output, OutputColumns(tagged.Columns(), r.cfg.ResponseColumn)); err != nil {
		return "", nil, err
	}
	return routine, tagged, nil
}

// checkOutput verifies that output exists and has every column of the joined
// rows
func (r *Runner) checkOutput(ctx context.Context, output session.TableRef, want []string) error {
	cols, err := r.session.Columns(ctx, output)
	if errors.IsNotFoundError(err) {
		return errors.WithHint(
			errors.WrapConfiguration(err, "output table %s", output),
			"create the table first, or pass --create-output",
		)
	}
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c.Name)] = true
	}
	var missing []string
	for _, c := range want {
		if !have[strings.ToLower(c)] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		err := errors.Newf("output table %s is missing columns %s", output, strings.Join(missing, ", "))
		return errors.WithHint(
			errors.Mark(errors.Mark(err, errors.ErrSchemaMismatch), errors.ErrConfiguration),
			"the output table needs every source column plus the identifier and response columns",
		)
	}
	return nil
}

// execute walks run through the state machine until DONE or an error
func (r *Runner) execute(ctx context.Context, run *Run, tagged *session.Frame, output session.TableRef, log *zap.SugaredLogger) error {
	if err := r.advance(ctx, run, StateTagging, log); err != nil {
		return err
	}
	f, err := newFetcher(ctx, tagged, r.cfg.BatchSize, log)
	if err != nil {
		return err
	}
	defer f.close()

	for {
		if err := r.advance(ctx, run, StateFetchingBatch, log); err != nil {
			return err
		}
		batch, err := f.next()
		if err == io.EOF {
			return r.advance(ctx, run, StateDone, log)
		}
		if err != nil {
			return err
		}
		run.RowsRead += batch.Len()

		if err := r.advance(ctx, run, StateInvoking, log); err != nil {
			return err
		}
		results, err := r.invoker.InvokeBatch(ctx, batch, run.Routine)
		if err != nil {
			return errors.Wrapf(err, "batch %d", batch.Index)
		}

		if err := r.advance(ctx, run, StateJoiningAndAppending, log); err != nil {
			return err
		}
		joined, err := JoinResults(batch, results, r.cfg.RowIDColumn, r.cfg.ResponseColumn)
		if err != nil {
			return errors.Wrapf(err, "batch %d", batch.Index)
		}
		if err := r.appender.Append(ctx, output, joined); err != nil {
			return errors.Wrapf(err, "batch %d", batch.Index)
		}

		run.Batches++
		run.RowsAppended += len(joined)
		log.Infow("Batch appended",
			logger.FieldBatch, batch.Index,
			logger.FieldCount, len(joined),
			logger.FieldRows, run.RowsAppended,
		)
	}
}

// advance transitions run to next and persists it
func (r *Runner) advance(ctx context.Context, run *Run, next State, log *zap.SugaredLogger) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "run cancelled")
	}
	if err := run.transition(next); err != nil {
		return err
	}
	log.Debugw("Run state", logger.FieldState, next)
	if r.store == nil {
		return nil
	}
	return r.store.Update(ctx, run)
}

// save persists run after a failure, even when ctx is cancelled
func (r *Runner) save(ctx context.Context, run *Run, log *zap.SugaredLogger) {
	if r.store == nil {
		return
	}
	if err := r.store.Update(context.WithoutCancel(ctx), run); err != nil {
		log.Warnw("Failed to record run state", logger.FieldState, run.State, logger.FieldError, err)
	}
}
