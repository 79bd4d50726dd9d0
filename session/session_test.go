package session

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/evalanche/db"
	"github.com/teranos/evalanche/errors"
	testdb "github.com/teranos/evalanche/internal/testing"
	"github.com/teranos/evalanche/routines"
)

// newTestSession returns a session over a fresh database holding
// main.questions(id, question) with rows A, BB, CCC.
func newTestSession(t *testing.T) *Session {
	t.Helper()

	reg := routines.NewRegistry()
	require.NoError(t, routines.RegisterBuiltins(reg))
	require.NoError(t, reg.Register("fail", "always fails", func(string) (any, error) {
		return nil, errors.New("routine exploded")
	}))

	conn := testdb.CreateTestDBWithRoutines(t, reg)
	testdb.Exec(t, conn,
		"CREATE TABLE questions (id INTEGER PRIMARY KEY, question TEXT NOT NULL)",
		"INSERT INTO questions (id, question) VALUES (1, 'A'), (2, 'BB'), (3, 'CCC')",
	)

	return New(conn, Options{
		Catalog:  "EVAL",
		Routines: reg,
		Logger:   zaptest.NewLogger(t).Sugar(),
	})
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	t.Run("schemas", func(t *testing.T) {
		schemas, err := s.Schemas(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"main"}, schemas)
	})

	t.Run("tables hide bookkeeping tables", func(t *testing.T) {
		tables, err := s.Tables(ctx, "EVAL", "main")
		require.NoError(t, err)
		assert.Equal(t, []string{"questions"}, tables)
	})

	t.Run("catalog is case-insensitive", func(t *testing.T) {
		_, err := s.Tables(ctx, "eval", "main")
		require.NoError(t, err)
	})

	t.Run("unknown catalog", func(t *testing.T) {
		_, err := s.Tables(ctx, "PROD", "main")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("unknown schema", func(t *testing.T) {
		_, err := s.Tables(ctx, "EVAL", "nope")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
		assert.NotEmpty(t, errors.GetAllHints(err))
	})

	t.Run("columns", func(t *testing.T) {
		cols, err := s.Columns(ctx, s.Ref("main", "questions"))
		require.NoError(t, err)
		require.Len(t, cols, 2)
		assert.Equal(t, Column{Name: "id", Type: "INTEGER", PrimaryKey: true}, cols[0])
		assert.Equal(t, Column{Name: "question", Type: "TEXT", NotNull: true}, cols[1])
	})

	t.Run("columns of missing table", func(t *testing.T) {
		_, err := s.Columns(ctx, s.Ref("main", "missing"))
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("routines", func(t *testing.T) {
		assert.Equal(t, []string{"fail", "row_columns", "row_json", "square_len"}, s.Routines())
	})
}

func TestCatalog_AttachedSchemas(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	groundPath := filepath.Join(dir, "ground.db")

	ground, err := db.Open(groundPath, nil)
	require.NoError(t, err)
	testdb.Exec(t, ground, "CREATE TABLE answers (id INTEGER, answer TEXT)")
	require.NoError(t, ground.Close())

	conn, err := db.OpenWithOptions(filepath.Join(dir, "main.db"), db.Options{
		Attach: map[string]string{"ground": groundPath},
	}, nil)
	require.NoError(t, err)
	defer conn.Close()

	s := New(conn, Options{Catalog: "LAB"})

	schemas, err := s.Schemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "ground"}, schemas)

	tables, err := s.Tables(ctx, "LAB", "ground")
	require.NoError(t, err)
	assert.Equal(t, []string{"answers"}, tables)

	f, err := s.Table(ctx, TableRef{"LAB", "ground", "answers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "answer"}, f.Columns())
}

func TestCatalog_DriverErrors(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT name FROM pragma_database_list").
		WillReturnError(errors.New("disk I/O error"))

	s := New(conn, Options{})
	_, err = s.Schemas(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list schemas")
	assert.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	t.Run("empty query", func(t *testing.T) {
		_, err := s.SQL(ctx, "  ;  ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("failing query", func(t *testing.T) {
		_, err := s.SQL(ctx, "SELECT nope FROM questions")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		assert.Contains(t, err.Error(), "invalid SQL query")
	})

	t.Run("valid query keeps its source SQL", func(t *testing.T) {
		f, err := s.SQL(ctx, "SELECT question AS q FROM questions WHERE id > 1;")
		require.NoError(t, err)
		assert.Equal(t, []string{"q"}, f.Columns())
		assert.Equal(t, "SELECT question AS q FROM questions WHERE id > 1", f.SQL())

		records, err := f.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		v, _ := records[0].Get("q")
		assert.Equal(t, "BB", v)
	})
}

func TestFrame(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	f, err := s.Table(ctx, s.Ref("main", "questions"))
	require.NoError(t, err)

	t.Run("table of unknown catalog", func(t *testing.T) {
		_, err := s.Table(ctx, TableRef{"OTHER", "main", "questions"})
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("count", func(t *testing.T) {
		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("select reorders and resolves case", func(t *testing.T) {
		sel, err := f.Select("QUESTION", "id")
		require.NoError(t, err)
		assert.Equal(t, []string{"question", "id"}, sel.Columns())

		records, err := sel.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []any{"A", int64(1)}, records[0].Values())
	})

	t.Run("select unknown column", func(t *testing.T) {
		_, err := f.Select("nope")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("limit", func(t *testing.T) {
		records, err := f.Limit(2).Collect(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Same(t, f, f.Limit(0))
	})

	t.Run("has column", func(t *testing.T) {
		assert.True(t, f.HasColumn("ID"))
		assert.False(t, f.HasColumn("ROW_ID"))
	})
}

func TestBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	f, err := s.Table(ctx, s.Ref("main", "questions"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		size  int
		sizes []int
	}{
		{name: "one row per batch", size: 1, sizes: []int{1, 1, 1}},
		{name: "uneven final batch", size: 2, sizes: []int{2, 1}},
		{name: "exact fit", size: 3, sizes: []int{3}},
		{name: "larger than source", size: 10, sizes: []int{3}},
		{name: "session default", size: 0, sizes: []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br, err := f.Batches(ctx, tt.size)
			require.NoError(t, err)
			defer br.Close()

			var sizes []int
			for {
				batch, err := br.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				assert.Equal(t, len(sizes), batch.Index)
				assert.Equal(t, []string{"id", "question"}, batch.Columns)
				sizes = append(sizes, batch.Len())
			}
			assert.Equal(t, tt.sizes, sizes)

			// Not restartable
			_, err = br.Next()
			assert.Equal(t, io.EOF, err)
		})
	}

	t.Run("empty frame yields no batches", func(t *testing.T) {
		empty, err := s.SQL(ctx, "SELECT * FROM questions WHERE id < 0")
		require.NoError(t, err)

		br, err := empty.Batches(ctx, 2)
		require.NoError(t, err)
		defer br.Close()

		_, err = br.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("close before end", func(t *testing.T) {
		br, err := f.Batches(ctx, 1)
		require.NoError(t, err)
		_, err = br.Next()
		require.NoError(t, err)
		require.NoError(t, br.Close())
		require.NoError(t, br.Close())

		_, err = br.Next()
		assert.Equal(t, io.EOF, err)
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	testdb.Exec(t, s.DB(),
		"CREATE TABLE answers (id INTEGER, question TEXT, expected TEXT)",
		"INSERT INTO answers VALUES (1, 'A?', 'a'), (3, 'C?', 'c'), (4, 'D?', 'd')",
	)

	inference, err := s.Table(ctx, s.Ref("main", "questions"))
	require.NoError(t, err)
	ground, err := s.Table(ctx, s.Ref("main", "answers"))
	require.NoError(t, err)

	t.Run("inner join renames colliding ground columns", func(t *testing.T) {
		joined, err := s.Join(inference, ground, "id", "ID", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "question", "GROUND_id", "GROUND_question", "expected"}, joined.Columns())

		records, err := joined.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)

		byID := map[int64]Record{}
		for _, rec := range records {
			id, _ := rec.Get("id")
			byID[id.(int64)] = rec
		}
		require.Contains(t, byID, int64(3))
		v, _ := byID[3].Get("GROUND_question")
		assert.Equal(t, "C?", v)
		v, _ = byID[3].Get("question")
		assert.Equal(t, "CCC", v)
	})

	t.Run("limit", func(t *testing.T) {
		joined, err := s.Join(inference, ground, "id", "id", 1)
		require.NoError(t, err)
		records, err := joined.Collect(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("missing inputs", func(t *testing.T) {
		_, err := s.Join(nil, ground, "id", "id", 0)
		assert.EqualError(t, err, "no inference data selected")
		_, err = s.Join(inference, nil, "id", "id", 0)
		assert.EqualError(t, err, "no ground truth data selected")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Join(inference, ground, "nope", "id", 0)
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	rec := NewRecord(Field{Name: "ROW_ID", Value: int64(7)}, Field{Name: "question", Value: "CCC"})

	t.Run("builtin routine", func(t *testing.T) {
		v, err := s.Call(ctx, "square_len", rec)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v)
	})

	t.Run("qualified reference with signature", func(t *testing.T) {
		v, err := s.Call(ctx, "EVAL.main.row_json(VARIANT)", rec)
		require.NoError(t, err)
		assert.Equal(t, `{"ROW_ID":7,"question":"CCC"}`, v)
	})

	t.Run("unknown routine is a configuration error", func(t *testing.T) {
		_, err := s.Call(ctx, "nope", rec)
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
		assert.False(t, errors.IsInvocationError(err))
	})

	t.Run("failing routine is an invocation error", func(t *testing.T) {
		_, err := s.Call(ctx, "fail", rec)
		require.Error(t, err)
		assert.True(t, errors.IsInvocationError(err))
		assert.Contains(t, err.Error(), "routine exploded")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Call(cctx, "square_len", rec)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	out := s.Ref("main", "results")
	columns := []string{"ROW_ID", "question", "RESPONSE"}

	require.NoError(t, s.CreateTable(ctx, out, columns))

	t.Run("create existing table fails", func(t *testing.T) {
		require.Error(t, s.CreateTable(ctx, out, columns))
	})

	t.Run("appends and never overwrites", func(t *testing.T) {
		records := []Record{
			NewRecord(Field{"ROW_ID", int64(1)}, Field{"question", "A"}, Field{"RESPONSE", int64(1)}),
			NewRecord(Field{"ROW_ID", int64(2)}, Field{"question", "BB"}, Field{"RESPONSE", nil}),
		}
		require.NoError(t, s.Append(ctx, out, columns, records))
		require.NoError(t, s.Append(ctx, out, columns, records))

		var n int
		require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM results").Scan(&n))
		assert.Equal(t, 4, n)
	})

	t.Run("empty append is a no-op", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, out, columns, nil))
	})

	t.Run("schema mismatch", func(t *testing.T) {
		records := []Record{NewRecord(Field{"ROW_ID", int64(1)}, Field{"other", "x"})}
		err := s.Append(ctx, out, []string{"ROW_ID", "other"}, records)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))
	})

	t.Run("missing table is a schema mismatch", func(t *testing.T) {
		records := []Record{NewRecord(Field{"ROW_ID", int64(1)})}
		err := s.Append(ctx, s.Ref("main", "absent"), []string{"ROW_ID"}, records)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))

		exists, err := s.TableExists(ctx, s.Ref("main", "absent"))
		require.NoError(t, err)
		assert.False(t, exists, "append must never create the output table")
	})

	t.Run("one transaction per append", func(t *testing.T) {
		strict := s.Ref("main", "strict")
		testdb.Exec(t, s.DB(), `CREATE TABLE strict ("ROW_ID" INTEGER, "RESPONSE" TEXT NOT NULL)`)

		records := []Record{
			NewRecord(Field{"ROW_ID", int64(1)}, Field{"RESPONSE", "ok"}),
			NewRecord(Field{"ROW_ID", int64(2)}, Field{"RESPONSE", nil}),
		}
		err := s.Append(ctx, strict, []string{"ROW_ID", "RESPONSE"}, records)
		require.Error(t, err)
		assert.True(t, db.IsConstraintError(err))

		var n int
		require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM strict").Scan(&n))
		assert.Equal(t, 0, n)
	})
}

func TestAppend_DriverErrors(t *testing.T) {
	ctx := context.Background()
	records := []Record{NewRecord(Field{"ROW_ID", int64(1)}, Field{"RESPONSE", "ok"})}
	columns := []string{"ROW_ID", "RESPONSE"}

	tests := []struct {
		name   string
		err    error
		schema bool
	}{
		{"busy is not a schema mismatch", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"cancelled is not a schema mismatch", context.Canceled, false},
		{"constraint is a schema mismatch", sqlite3.Error{Code: sqlite3.ErrConstraint}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer conn.Close()

			mock.ExpectBegin()
			mock.ExpectPrepare("INSERT INTO").
				ExpectExec().
				WithArgs(int64(1), "ok").
				WillReturnError(tt.err)
			mock.ExpectRollback()

			s := New(conn, Options{})
			err = s.Append(ctx, s.Ref("main", "results"), columns, records)
			require.Error(t, err)
			assert.Equal(t, tt.schema, errors.Is(err, errors.ErrSchemaMismatch))
			assert.True(t, errors.Is(err, tt.err))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
