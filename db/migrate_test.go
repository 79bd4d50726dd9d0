package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		logger := zaptest.NewLogger(t).Sugar()
		require.NoError(t, Migrate(db, logger))
		require.NoError(t, Migrate(db, logger))

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))

		entries, err := migrations.ReadDir("sqlite/migrations")
		require.NoError(t, err)
		assert.Equal(t, len(entries), versions)
	})

	t.Run("records versions in order", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
		require.NoError(t, err)
		defer rows.Close()

		var got []string
		for rows.Next() {
			var v string
			require.NoError(t, rows.Scan(&v))
			got = append(got, v)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"000", "001", "002"}, got)
	})
}

func TestListMigrations(t *testing.T) {
	all, err := listMigrations(migrations)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, migration{version: "000", file: "000_create_schema_migrations.sql"}, all[0])
	assert.Equal(t, "001", all[1].version)
	assert.Equal(t, "002", all[2].version)
}

func TestAppliedVersions(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	applied, err := appliedVersions(db)
	require.NoError(t, err)
	assert.Empty(t, applied, "a fresh database has no schema_migrations table")

	require.NoError(t, Migrate(db, zaptest.NewLogger(t).Sugar()))
	applied, err = appliedVersions(db)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"000": true, "001": true, "002": true}, applied)
}
