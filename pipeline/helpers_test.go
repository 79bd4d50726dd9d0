package pipeline

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/evalanche/errors"
	testdb "github.com/teranos/evalanche/internal/testing"
	"github.com/teranos/evalanche/routines"
	"github.com/teranos/evalanche/session"
)

// newTestSession returns a session over a fresh database holding
// main.questions(id, question) with one row per question, and an empty
// main.results table shaped for the tagged rows plus RESPONSE.
//
// Besides the built-ins it registers fail_on, which fails for records whose
// question is "FAIL" and otherwise returns the question in lower case.
func newTestSession(t *testing.T, questions ...string) (*session.Session, *sql.DB) {
	t.Helper()

	reg := routines.NewRegistry()
	require.NoError(t, routines.RegisterBuiltins(reg))
	require.NoError(t, reg.Register("fail_on", "fails on FAIL", func(arg string) (any, error) {
		fields, err := routines.DecodeArgument(arg)
		if err != nil {
			return nil, err
		}
		q, _ := fields["question"].(string)
		if q == "FAIL" {
			return nil, errors.New("refusing to answer")
		}
		return strings.ToLower(q), nil
	}))

	conn := testdb.CreateTestDBWithRoutines(t, reg)
	testdb.Exec(t, conn,
		"CREATE TABLE questions (id INTEGER PRIMARY KEY, question TEXT NOT NULL)",
		"CREATE TABLE results (ROW_ID INTEGER, id INTEGER, question TEXT, RESPONSE)",
	)
	for _, q := range questions {
		_, err := conn.Exec("INSERT INTO questions (question) VALUES (?)", q)
		require.NoError(t, err)
	}

	s := session.New(conn, session.Options{
		Catalog:  "EVAL",
		Routines: reg,
		Logger:   zaptest.NewLogger(t).Sugar(),
	})
	return s, conn
}

// questionsFrame returns a frame over every row of main.questions
func questionsFrame(t *testing.T, s *session.Session) *session.Frame {
	t.Helper()
	f, err := s.Table(t.Context(), s.Ref("main", "questions"))
	require.NoError(t, err)
	return f
}

// record builds a tagged record
func record(id int64, question string) session.Record {
	return session.NewRecord(
		session.Field{Name: "ROW_ID", Value: id},
		session.Field{Name: "question", Value: question},
	)
}

func batchOf(records ...session.Record) session.Batch {
	return session.Batch{Columns: []string{"ROW_ID", "question"}, Records: records}
}
