package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/session"
)

// Result is the response of one routine call, keyed by the row identifier of
// the record it was computed from.
type Result struct {
	RowID    int64
	Response any
}

// Caller invokes a routine with one record. Implemented by *session.Session.
type Caller interface {
	Call(ctx context.Context, routine string, record session.Record) (any, error)
}

// InvokerOptions configure an Invoker
type InvokerOptions struct {
	Workers      int           // concurrent calls; 0 = logical CPU count
	RowIDColumn  string        // column holding the row identifier
	MaxRetries   int           // retries per record on invocation error
	RetryBackoff time.Duration // wait before the first retry, doubled per retry
	Logger       *zap.SugaredLogger
}

// Invoker calls a routine once per record of a batch on a bounded pool of
// goroutines. All workers share one session.
type Invoker struct {
	caller       Caller
	workers      int
	rowIDColumn  string
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.SugaredLogger
}

// maxRetryBackoff caps the doubled retry wait
const maxRetryBackoff = 30 * time.Second

// NewInvoker creates an invoker that calls routines through caller
func NewInvoker(caller Caller, opts InvokerOptions) *Invoker {
	workers := opts.Workers
	if workers <= 0 {
		workers = LogicalCPUs()
	}
	if opts.RowIDColumn == "" {
		opts.RowIDColumn = "ROW_ID"
	}
	return &Invoker{
		caller:       caller,
		workers:      workers,
		rowIDColumn:  opts.RowIDColumn,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       logger.OrNop(opts.Logger),
	}
}

// Workers returns the concurrency bound of the invoker
func (inv *Invoker) Workers() int {
	return inv.workers
}

// LogicalCPUs returns the number of logical processors
func LogicalCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// InvokeBatch calls routine once for every record of batch, passing the whole
// record as the single argument, and returns one result per record in no
// particular order.
//
// The first failing call aborts the batch: calls not yet started are skipped,
// calls in flight see a cancelled context, and no results are returned.
func (inv *Invoker) InvokeBatch(ctx context.Context, batch session.Batch, routine string) ([]Result, error) {
	results := make([]Result, len(batch.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.workers)

	for i, rec := range batch.Records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id, err := rowID(rec, inv.rowIDColumn)
			if err != nil {
				return err
			}
			resp, err := inv.call(gctx, routine, rec)
			if err != nil {
				return errors.Wrapf(err, "row %d", id)
			}
			results[i] = Result{RowID: id, Response: resp}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// call invokes routine for one record, retrying invocation errors up to
// maxRetries times with doubling backoff
func (inv *Invoker) call(ctx context.Context, routine string, rec session.Record) (any, error) {
	backoff := inv.retryBackoff
	for attempt := 0; ; attempt++ {
		resp, err := inv.caller.Call(ctx, routine, rec)
		if err == nil {
			return resp, nil
		}
		if attempt >= inv.maxRetries || !errors.IsInvocationError(err) || ctx.Err() != nil {
			return nil, err
		}

		inv.logger.Warnw("Routine call failed, retrying",
			logger.FieldRoutine, routine,
			"attempt", attempt+1,
			"max_retries", inv.maxRetries,
			"backoff", backoff,
			logger.FieldError, err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.WrapInvocation(ctx.Err(), "retry of %s cancelled", routine)
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// rowID extracts the integer row identifier of rec
func rowID(rec session.Record, column string) (int64, error) {
	v, ok := rec.Get(column)
	if !ok {
		return 0, errors.Mark(errors.Newf("record has no %s column", column), errors.ErrJoin)
	}
	switch id := v.(type) {
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	case int32:
		return int64(id), nil
	default:
		return 0, errors.Mark(errors.Newf("row identifier %v is a %T, not an integer", v, v), errors.ErrJoin)
	}
}
