package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	rec := NewRecord(
		Field{Name: "ROW_ID", Value: int64(1)},
		Field{Name: "question", Value: "why?"},
		Field{Name: "score", Value: 0.5},
	)

	t.Run("preserves column order in JSON", func(t *testing.T) {
		text, err := rec.JSON()
		require.NoError(t, err)
		assert.Equal(t, `{"ROW_ID":1,"question":"why?","score":0.5}`, text)
	})

	t.Run("get is case-insensitive with exact match first", func(t *testing.T) {
		v, ok := rec.Get("QUESTION")
		require.True(t, ok)
		assert.Equal(t, "why?", v)

		_, ok = rec.Get("missing")
		assert.False(t, ok)

		both := NewRecord(Field{Name: "a", Value: 1}, Field{Name: "A", Value: 2})
		v, _ = both.Get("A")
		assert.Equal(t, 2, v)
	})

	t.Run("with returns a copy", func(t *testing.T) {
		extended := rec.With("RESPONSE", "because")
		assert.Equal(t, 3, rec.Len())
		assert.Equal(t, []string{"ROW_ID", "question", "score", "RESPONSE"}, extended.Columns())

		replaced := rec.With("score", 1.0)
		assert.Equal(t, []any{int64(1), "why?", 1.0}, replaced.Values())
		assert.Equal(t, []any{int64(1), "why?", 0.5}, rec.Values())
	})

	t.Run("fields cannot mutate the record", func(t *testing.T) {
		fields := rec.Fields()
		fields[0].Value = "changed"
		v, _ := rec.Get("ROW_ID")
		assert.Equal(t, int64(1), v)
	})

	t.Run("embeds in other JSON", func(t *testing.T) {
		b, err := json.Marshal(map[string]any{"row": rec})
		require.NoError(t, err)
		assert.JSONEq(t, `{"row":{"ROW_ID":1,"question":"why?","score":0.5}}`, string(b))
	})
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "text", normalizeValue([]byte("text")))
	assert.Equal(t, []byte{0xff, 0xfe}, normalizeValue([]byte{0xff, 0xfe}))
	assert.Equal(t, int64(3), normalizeValue(int64(3)))
	assert.Nil(t, normalizeValue(nil))
}
