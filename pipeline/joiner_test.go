package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/session"
)

func TestJoinResults(t *testing.T) {
	batch := batchOf(record(1, "A"), record(2, "BB"), record(3, "CCC"))

	t.Run("every row matched", func(t *testing.T) {
		results := []Result{{RowID: 3, Response: int64(3)}, {RowID: 1, Response: int64(1)}, {RowID: 2, Response: int64(2)}}

		out, err := JoinResults(batch, results, "ROW_ID", "RESPONSE")
		require.NoError(t, err)
		require.Len(t, out, 3)
		for i, rec := range out {
			assert.Equal(t, []string{"ROW_ID", "question", "RESPONSE"}, rec.Columns())
			id, _ := rec.Get("ROW_ID")
			assert.Equal(t, int64(i+1), id, "batch order is kept")
			resp, _ := rec.Get("RESPONSE")
			assert.Equal(t, int64(i+1), resp)
		}
	})

	t.Run("unmatched source rows get a null response", func(t *testing.T) {
		out, err := JoinResults(batch, []Result{{RowID: 2, Response: "two"}}, "ROW_ID", "RESPONSE")
		require.NoError(t, err)
		require.Len(t, out, 3)

		resp, ok := out[0].Get("RESPONSE")
		assert.True(t, ok)
		assert.Nil(t, resp)
		resp, _ = out[1].Get("RESPONSE")
		assert.Equal(t, "two", resp)
	})

	t.Run("source records are not modified", func(t *testing.T) {
		_, err := JoinResults(batch, []Result{{RowID: 1, Response: "x"}}, "ROW_ID", "RESPONSE")
		require.NoError(t, err)
		_, ok := batch.Records[0].Get("RESPONSE")
		assert.False(t, ok)
	})

	t.Run("result without a source row", func(t *testing.T) {
		_, err := JoinResults(batch, []Result{{RowID: 1}, {RowID: 9}}, "ROW_ID", "RESPONSE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrJoin))
		assert.Contains(t, err.Error(), "row 9")
	})

	t.Run("duplicate result", func(t *testing.T) {
		_, err := JoinResults(batch, []Result{{RowID: 1}, {RowID: 1}}, "ROW_ID", "RESPONSE")
		assert.True(t, errors.Is(err, errors.ErrJoin))
	})

	t.Run("empty batch", func(t *testing.T) {
		out, err := JoinResults(session.Batch{}, nil, "ROW_ID", "RESPONSE")
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestOutputColumns(t *testing.T) {
	cols := make([]string, 2, 4)
	cols[0], cols[1] = "ROW_ID", "question"

	out := OutputColumns(cols, "RESPONSE")
	assert.Equal(t, []string{"ROW_ID", "question", "RESPONSE"}, out)

	out[0] = "changed"
	assert.Equal(t, "ROW_ID", cols[0])
}

func TestAppender(t *testing.T) {
	s, conn := newTestSession(t)
	app := NewAppender(s, nil)
	output := s.Ref("main", "results")

	joined := []session.Record{
		record(1, "A").With("id", int64(1)).With("RESPONSE", int64(1)),
		record(2, "BB").With("id", int64(2)).With("RESPONSE", int64(2)),
	}
	require.NoError(t, app.Append(t.Context(), output, joined))
	require.NoError(t, app.Append(t.Context(), output, nil))

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM results").Scan(&n))
	assert.Equal(t, 2, n)

	t.Run("missing output table", func(t *testing.T) {
		err := app.Append(t.Context(), s.Ref("main", "nowhere"), joined)
		assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))

		exists, err := s.TableExists(t.Context(), s.Ref("main", "nowhere"))
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
