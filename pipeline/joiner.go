package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/session"
)

// JoinResults left-joins the records of batch with results on the row
// identifier and returns one output record per source record, in batch order,
// with responseColumn appended. Source records without a result get a nil
// response.
//
// A result whose identifier matches no source record, or two results for the
// same identifier, is an error marked ErrJoin.
func JoinResults(batch session.Batch, results []Result, rowIDColumn, responseColumn string) ([]session.Record, error) {
	responses := make(map[int64]any, len(results))
	for _, r := range results {
		if _, dup := responses[r.RowID]; dup {
			return nil, errors.Mark(errors.Newf("duplicate result for row %d", r.RowID), errors.ErrJoin)
		}
		responses[r.RowID] = r.Response
	}

	out := make([]session.Record, len(batch.Records))
	matched := 0
	for i, rec := range batch.Records {
		id, err := rowID(rec, rowIDColumn)
		if err != nil {
			return nil, err
		}
		resp, ok := responses[id]
		if ok {
			matched++
		}
		out[i] = rec.With(responseColumn, resp)
	}

	if matched != len(responses) {
		seen := make(map[int64]bool, len(batch.Records))
		for _, rec := range batch.Records {
			id, _ := rowID(rec, rowIDColumn)
			seen[id] = true
		}
		for id := range responses {
			if !seen[id] {
				return nil, errors.Mark(errors.Newf("result for row %d has no source row", id), errors.ErrJoin)
			}
		}
	}
	return out, nil
}

// OutputColumns returns the columns of joined records built from a batch
// with the given columns.
func OutputColumns(batchColumns []string, responseColumn string) []string {
	return append(append([]string(nil), batchColumns...), responseColumn)
}

// Appender writes joined records to the output table
type Appender struct {
	session *session.Session
	logger  *zap.SugaredLogger
}

// NewAppender creates an appender writing through s
func NewAppender(s *session.Session, log *zap.SugaredLogger) *Appender {
	return &Appender{session: s, logger: logger.OrNop(log)}
}

// Append inserts records into output in one transaction. It never creates,
// truncates or drops output.
func (a *Appender) Append(ctx context.Context, output session.TableRef, records []session.Record) error {
	if len(records) == 0 {
		return nil
	}
	columns := records[0].Columns()
	if err := a.session.Append(ctx, output, columns, records); err != nil {
		return err
	}
	a.logger.Debugw("Appended rows", logger.FieldTable, output.String(), logger.FieldCount, len(records))
	return nil
}
