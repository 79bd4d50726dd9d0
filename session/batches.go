package session

import (
	"context"
	"database/sql"
	"io"

	"github.com/teranos/evalanche/errors"
)

// Batch is one fixed, in-memory block of rows read from a frame
type Batch struct {
	Index   int // 0-based position in the stream
	Columns []string
	Records []Record
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return len(b.Records)
}

// BatchReader streams a frame in fixed-size batches. It reads the frame
// exactly once and cannot be restarted. Not safe for concurrent use.
type BatchReader struct {
	rows    *sql.Rows
	columns []string
	size    int
	index   int
	done    bool
}

// Batches starts streaming the frame. size <= 0 uses the session batch size.
// The caller must Close the reader.
func (f *Frame) Batches(ctx context.Context, size int) (*BatchReader, error) {
	if size <= 0 {
		size = f.s.batchSize
	}
	rows, err := f.run(ctx)
	if err != nil {
		return nil, err
	}
	return &BatchReader{rows: rows, columns: f.Columns(), size: size}, nil
}

// Columns returns the column names of every batch
func (br *BatchReader) Columns() []string {
	return append([]string(nil), br.columns...)
}

// Next reads the next batch. It returns io.EOF after the final batch, and
// keeps returning io.EOF on later calls. An empty frame yields io.EOF on the
// first call.
func (br *BatchReader) Next() (Batch, error) {
	if br.done {
		return Batch{}, io.EOF
	}

	records := make([]Record, 0, br.size)
	for len(records) < br.size && br.rows.Next() {
		rec, err := scanRecord(br.rows, br.columns)
		if err != nil {
			br.finish()
			return Batch{}, err
		}
		records = append(records, rec)
	}
	if len(records) < br.size {
		if err := br.rows.Err(); err != nil {
			br.finish()
			return Batch{}, errors.Wrap(err, "failed to fetch batch")
		}
		br.finish()
	}
	if len(records) == 0 {
		return Batch{}, io.EOF
	}

	batch := Batch{Index: br.index, Columns: br.Columns(), Records: records}
	br.index++
	return batch, nil
}

// Close releases the underlying cursor. Safe to call more than once.
func (br *BatchReader) Close() error {
	if br.done {
		return nil
	}
	br.done = true
	return br.rows.Close()
}

func (br *BatchReader) finish() {
	br.done = true
	br.rows.Close()
}
