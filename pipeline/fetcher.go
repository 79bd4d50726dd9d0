package pipeline

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/session"
)

// fetcher streams a tagged frame batch by batch for one run
type fetcher struct {
	reader  *session.BatchReader
	logger  *zap.SugaredLogger
	fetched int
	rows    int
}

func newFetcher(ctx context.Context, frame *session.Frame, batchSize int, log *zap.SugaredLogger) (*fetcher, error) {
	reader, err := frame.Batches(ctx, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start reading source")
	}
	return &fetcher{reader: reader, logger: log}, nil
}

// next returns the next batch, or io.EOF when the source is exhausted
func (f *fetcher) next() (session.Batch, error) {
	batch, err := f.reader.Next()
	if err == io.EOF {
		f.logger.Debugw("Source exhausted", "batches", f.fetched, logger.FieldRows, f.rows)
		return session.Batch{}, io.EOF
	}
	if err != nil {
		return session.Batch{}, errors.Wrapf(err, "failed to fetch batch %d", f.fetched)
	}

	f.fetched++
	f.rows += batch.Len()
	f.logger.Debugw("Fetched batch", logger.FieldBatch, batch.Index, logger.FieldCount, batch.Len())
	return batch, nil
}

func (f *fetcher) close() {
	if err := f.reader.Close(); err != nil {
		f.logger.Warnw("Failed to close source cursor", logger.FieldError, err)
	}
}
