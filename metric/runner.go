package metric

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/pipeline"
	"github.com/teranos/evalanche/session"
)

// Options configure a Runner
type Options struct {
	Workers   int              // concurrent rows scored; 0 = logical CPU count
	BatchSize int              // rows per batch; 0 = session batch size
	Output    session.TableRef // results table to append to; zero = none
	Logger    *zap.SugaredLogger
}

// Runner scores every row of a frame with a set of metrics
type Runner struct {
	s         *session.Session
	workers   int
	batchSize int
	output    session.TableRef
	logger    *zap.SugaredLogger
}

// Summary aggregates the numeric scores of one metric
type Summary struct {
	Metric string  `json:"metric"`
	Scored int     `json:"scored"` // rows with a numeric score
	Mean   float64 `json:"mean"`
}

// Result is the scored data: every input column followed by one column per
// metric
type Result struct {
	Columns []string         `json:"columns"`
	Records []session.Record `json:"records"`
	Summary []Summary        `json:"summary"`
}

// NewRunner creates a metric runner over s
func NewRunner(s *session.Session, opts Options) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = pipeline.LogicalCPUs()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.BatchSize()
	}
	return &Runner{
		s:         s,
		workers:   workers,
		batchSize: batchSize,
		output:    opts.Output,
		logger:    logger.OrNop(opts.Logger).With(logger.FieldComponent, "metric"),
	}
}

// OutputColumns returns the columns of the scored data for frame columns
// scored by metrics
func OutputColumns(columns []string, metrics []Metric) []string {
	out := make([]string, 0, len(columns)+len(metrics))
	out = append(out, columns...)
	for _, m := range metrics {
		out = append(out, m.Name())
	}
	return out
}

// Run scores every row of frame. Parameter columns come from assignments.
// When an output table is configured each scored batch is appended to it;
// batches appended before a failure stay in the table.
func (r *Runner) Run(ctx context.Context, frame *session.Frame, metrics []Metric, assignments Assignments) (*Result, error) {
	if frame == nil {
		return nil, errors.NewInvalidRequestError("no data selected")
	}
	if err := assignments.Validate(metrics, frame.Columns()); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		key := strings.ToLower(m.Name())
		if seen[key] {
			return nil, errors.NewConfigurationError("metric %s is selected twice", m.Name())
		}
		seen[key] = true
		if frame.HasColumn(m.Name()) {
			return nil, errors.WithHintf(
				errors.NewConfigurationError("input already has a column named %s", m.Name()),
				"rename the column in a custom SQL selection",
			)
		}
	}
	columns := OutputColumns(frame.Columns(), metrics)

	if !r.output.IsZero() {
		exists, err := r.s.TableExists(ctx, r.output)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.WithHint(
				errors.WrapConfiguration(errors.NewNotFoundError("table %s not found", r.output), "results table"),
				"create the table first, or set create = true under [output]",
			)
		}
	}

	reader, err := frame.Batches(ctx, r.batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read evaluation data")
	}
	defer reader.Close()

	r.logger.Infow("Scoring started",
		logger.FieldCount, len(metrics),
		logger.FieldWorkers, r.workers,
		logger.FieldBatchSize, r.batchSize,
	)

	sums := make([]float64, len(metrics))
	counts := make([]int, len(metrics))
	result := &Result{Columns: columns}

	for index := 0; ; index++ {
		batch, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", index)
		}

		scored, err := r.scoreBatch(ctx, batch, metrics, assignments)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", index)
		}

		if !r.output.IsZero() {
			if err := r.s.Append(ctx, r.output, columns, scored); err != nil {
				return nil, errors.Wrapf(err, "batch %d", index)
			}
		}

		for _, rec := range scored {
			for i, m := range metrics {
				v, _ := rec.Get(m.Name())
				if n, ok := numeric(v); ok {
					sums[i] += n
					counts[i]++
				}
			}
		}
		result.Records = append(result.Records, scored...)

		r.logger.Debugw("Batch scored", logger.FieldBatch, index, logger.FieldRows, batch.Len())
	}

	result.Summary = make([]Summary, len(metrics))
	for i, m := range metrics {
		result.Summary[i] = Summary{Metric: m.Name(), Scored: counts[i]}
		if counts[i] > 0 {
			result.Summary[i].Mean = sums[i] / float64(counts[i])
		}
	}

	r.logger.Infow("Scoring finished", logger.FieldRows, len(result.Records))
	return result, nil
}

// scoreBatch scores the records of batch on the worker pool, keeping their
// order. The first failing score aborts the batch.
func (r *Runner) scoreBatch(ctx context.Context, batch session.Batch, metrics []Metric, assignments Assignments) ([]session.Record, error) {
	scored := make([]session.Record, len(batch.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, rec := range batch.Records {
		g.Go(func() error {
			out := rec
			for _, m := range metrics {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, err := m.Score(gctx, assignments.Params(m, rec))
				if err != nil {
					return errors.Wrapf(err, "row %d: %s", i, m.Name())
				}
				out = out.With(m.Name(), score)
			}
			scored[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}
