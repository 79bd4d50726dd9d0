package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/evalanche/errors"
	testdb "github.com/teranos/evalanche/internal/testing"
	"github.com/teranos/evalanche/routines"
	"github.com/teranos/evalanche/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	conn := testdb.CreateTestDB(t)
	testdb.Exec(t, conn,
		"CREATE TABLE answers (id INTEGER, question TEXT, response TEXT, answer TEXT)",
		`INSERT INTO answers VALUES
			(1, 'Capital of France?', 'Paris', 'Paris'),
			(2, 'Capital of Italy?', 'It is Rome.', 'Rome'),
			(3, 'Capital of Spain?', 'Lisbon', 'Madrid'),
			(4, 'Capital of Japan?', 'Tokyo', 'Tokyo'),
			(5, 'Capital of Peru?', 'lima', 'Lima')`,
	)
	return session.New(conn, session.Options{Catalog: "EVAL", BatchSize: 2, Logger: zaptest.NewLogger(t).Sugar()})
}

func answersFrame(t *testing.T, s *session.Session) *session.Frame {
	t.Helper()
	f, err := s.SQL(t.Context(), "SELECT * FROM answers ORDER BY id")
	require.NoError(t, err)
	return f
}

func outputExpectedAssignments(metrics ...Metric) Assignments {
	a := Assignments{}
	for _, m := range metrics {
		a.Assign(m.Name(), "output", "response")
		a.Assign(m.Name(), "expected", "answer")
	}
	return a
}

// failingMetric errors on the row whose output equals fail
type failingMetric struct{ fail string }

func (failingMetric) Name() string        { return "fragile" }
func (failingMetric) Description() string { return "fails on one value" }
func (failingMetric) Required() []Param   { return []Param{{Name: "output"}} }

func (m failingMetric) Score(_ context.Context, params map[string]any) (any, error) {
	if params["output"] == m.fail {
		return nil, errors.New("cannot score")
	}
	return 1.0, nil
}

func TestRunner(t *testing.T) {
	s := newTestSession(t)
	metrics := []Metric{ExactMatch{}, Contains{}}

	r := NewRunner(s, Options{Workers: 3, Logger: zaptest.NewLogger(t).Sugar()})
	result, err := r.Run(t.Context(), answersFrame(t, s), metrics, outputExpectedAssignments(metrics...))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "question", "response", "answer", "exact_match", "contains"}, result.Columns)
	require.Len(t, result.Records, 5)

	for i, rec := range result.Records {
		id, _ := rec.Get("id")
		assert.Equal(t, int64(i+1), id, "row order is kept")
		assert.Equal(t, result.Columns, rec.Columns())
	}

	exact, _ := result.Records[1].Get("exact_match")
	contains, _ := result.Records[1].Get("contains")
	assert.Equal(t, 0.0, exact)
	assert.Equal(t, 1.0, contains)

	require.Len(t, result.Summary, 2)
	assert.Equal(t, Summary{Metric: "exact_match", Scored: 5, Mean: 0.4}, result.Summary[0])
	assert.Equal(t, Summary{Metric: "contains", Scored: 5, Mean: 0.8}, result.Summary[1])
}

func TestRunner_Output(t *testing.T) {
	ctx := t.Context()
	s := newTestSession(t)
	metrics := []Metric{ExactMatch{}}
	frame := answersFrame(t, s)
	out := s.Ref("main", "scores")

	t.Run("missing results table", func(t *testing.T) {
		r := NewRunner(s, Options{Output: out})
		_, err := r.Run(ctx, frame, metrics, outputExpectedAssignments(metrics...))
		assert.True(t, errors.IsConfigurationError(err))
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("appends every batch", func(t *testing.T) {
		require.NoError(t, s.CreateTable(ctx, out, OutputColumns(frame.Columns(), metrics)))

		r := NewRunner(s, Options{Output: out})
		_, err := r.Run(ctx, frame, metrics, outputExpectedAssignments(metrics...))
		require.NoError(t, err)

		var rows int
		var total float64
		require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*), SUM(exact_match) FROM scores").Scan(&rows, &total))
		assert.Equal(t, 5, rows)
		assert.Equal(t, 2.0, total)
	})
}

func TestRunner_Errors(t *testing.T) {
	ctx := t.Context()
	s := newTestSession(t)

	t.Run("no data", func(t *testing.T) {
		_, err := NewRunner(s, Options{}).Run(ctx, nil, []Metric{ExactMatch{}}, Assignments{})
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("unassigned parameter", func(t *testing.T) {
		_, err := NewRunner(s, Options{}).Run(ctx, answersFrame(t, s), []Metric{ExactMatch{}}, Assignments{})
		assert.EqualError(t, err, "select columns for all required parameters")
	})

	t.Run("metric name clashes with a column", func(t *testing.T) {
		frame, err := s.SQL(ctx, "SELECT response, answer, 1 AS contains FROM answers")
		require.NoError(t, err)
		metrics := []Metric{Contains{}}
		_, err = NewRunner(s, Options{}).Run(ctx, frame, metrics, outputExpectedAssignments(metrics...))
		assert.True(t, errors.IsConfigurationError(err))
	})

	t.Run("failing score aborts", func(t *testing.T) {
		m := failingMetric{fail: "Lisbon"}
		a := Assignments{}
		a.Assign(m.Name(), "output", "response")

		_, err := NewRunner(s, Options{Workers: 1}).Run(ctx, answersFrame(t, s), []Metric{m}, a)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch 1")
		assert.Contains(t, err.Error(), "cannot score")
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		metrics := []Metric{ExactMatch{}}
		_, err := NewRunner(s, Options{}).Run(cctx, answersFrame(t, s), metrics, outputExpectedAssignments(metrics...))
		assert.Error(t, err)
	})
}

func TestRunner_UnparseableJudgeReply(t *testing.T) {
	s := newTestSession(t)
	judge := &judgeClient{reply: "no idea"}
	m := NewLLMCorrectness(judge)
	a := Assignments{}
	a.Assign(m.Name(), "question", "question")
	a.Assign(m.Name(), "output", "response")
	a.Assign(m.Name(), "expected", "answer")

	_, err := NewRunner(s, Options{}).Run(t.Context(), answersFrame(t, s), []Metric{m}, a)
	assert.True(t, errors.IsInvocationError(err))
}

func TestRunner_ReadErrorNamesBatch(t *testing.T) {
	reg := routines.NewRegistry()
	require.NoError(t, reg.Register("explode", "fails on Lisbon", func(arg string) (any, error) {
		if arg == "Lisbon" {
			return nil, errors.New("unreadable row")
		}
		return arg, nil
	}))
	conn := testdb.CreateTestDBWithRoutines(t, reg)
	testdb.Exec(t, conn,
		"CREATE TABLE answers (id INTEGER, response TEXT, answer TEXT)",
		`INSERT INTO answers VALUES (1, 'Paris', 'Paris'), (2, 'Rome', 'Rome'), (3, 'Lisbon', 'Madrid'), (4, 'Tokyo', 'Tokyo')`,
	)
	s := session.New(conn, session.Options{BatchSize: 2, Logger: zaptest.NewLogger(t).Sugar()})

	frame, err := s.SQL(t.Context(), "SELECT id, explode(response) AS response, answer FROM answers")
	require.NoError(t, err)

	metrics := []Metric{ExactMatch{}}
	_, err = NewRunner(s, Options{Workers: 1}).Run(t.Context(), frame, metrics, outputExpectedAssignments(metrics...))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1")
	assert.Contains(t, err.Error(), "unreadable row")
}

func TestRunner_DuplicateMetric(t *testing.T) {
	ctx := t.Context()
	s := newTestSession(t)
	frame := answersFrame(t, s)
	out := s.Ref("main", "scores")
	require.NoError(t, s.CreateTable(ctx, out, OutputColumns(frame.Columns(), []Metric{ExactMatch{}})))

	metrics := []Metric{ExactMatch{}, ExactMatch{}}
	_, err := NewRunner(s, Options{Output: out}).Run(ctx, frame, metrics, outputExpectedAssignments(metrics...))
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "exact_match is selected twice")

	var rows int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM scores").Scan(&rows))
	assert.Zero(t, rows)
}
