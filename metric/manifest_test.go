package metric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/evalanche/errors"
)

const joinedManifest = `
[selection.ground]
table = "EVAL.main.expected"
columns = ["id", "answer"]
join_column = "id"

[selection.inference]
sql = "SELECT id, response FROM actual"
join_column = "id"

[[metrics]]
name = "exact_match"
params = { output = "response", expected = "answer" }

[[metrics]]
name = "contains"
[metrics.params]
output = "response"
expected = "answer"

[output]
table = "EVAL.main.scores"
create = true
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(joinedManifest)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	require.NotNil(t, m.Selection.Ground)
	assert.Equal(t, []string{"id", "answer"}, m.Selection.Ground.Columns)
	assert.Equal(t, "SELECT id, response FROM actual", m.Selection.Inference.SQL)
	assert.Nil(t, m.Selection.Single)

	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, nil))
	metrics, assignments, err := m.Resolve(reg)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	col, ok := assignments.Column("contains", "expected")
	assert.True(t, ok)
	assert.Equal(t, "answer", col)

	ref, err := m.OutputRef()
	require.NoError(t, err)
	assert.Equal(t, "scores", ref.Table)
	assert.True(t, m.Output.Create)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unknown key",
			manifest: "[selection.single]\ntable = \"EVAL.main.a\"\nlimit = 3\n",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsConfigurationError(err))
				assert.Contains(t, err.Error(), "selection.single.limit")
			},
		},
		{
			name:     "malformed",
			manifest: "[[metrics]\n",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsConfigurationError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.manifest)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{"no selection", "[[metrics]]\nname = \"contains\"\n", "no data selected"},
		{"no metrics", "[selection.single]\ntable = \"EVAL.main.a\"\n", "no metrics selected"},
		{"unnamed metric", "[selection.single]\ntable = \"EVAL.main.a\"\n[[metrics]]\n", "metric 1 has no name"},
		{"create without table", "[selection.single]\ntable = \"EVAL.main.a\"\n[[metrics]]\nname = \"contains\"\n[output]\ncreate = true\n", "no output table"},
		{"missing join column", "[selection.ground]\ntable = \"EVAL.main.a\"\n[selection.inference]\ntable = \"EVAL.main.b\"\njoin_column = \"id\"\n[[metrics]]\nname = \"contains\"\n", "no ground truth join column selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest(tt.manifest)
			require.NoError(t, err)
			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManifestValidate_DuplicateMetric(t *testing.T) {
	m, err := ParseManifest(`
[selection.single]
table = "EVAL.main.answers"

[[metrics]]
name = "exact_match"
params = { output = "response", expected = "answer" }

[[metrics]]
name = "Exact_Match"
params = { output = "response", expected = "question" }
`)
	require.NoError(t, err)

	err = m.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "listed twice (entries 1 and 2)")
	assert.Contains(t, errors.FlattenHints(err), "merge the parameters")
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.toml")
	require.NoError(t, os.WriteFile(path, []byte(joinedManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Metrics, 2)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.IsConfigurationError(err))
}

func TestManifestResolve_UnknownMetric(t *testing.T) {
	m, err := ParseManifest("[selection.single]\ntable = \"EVAL.main.a\"\n[[metrics]]\nname = \"bleu\"\n")
	require.NoError(t, err)

	_, _, err = m.Resolve(NewRegistry())
	assert.True(t, errors.IsNotFoundError(err))
}
