package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates every table", func(t *testing.T) {
		db, err := OpenWithMigrations(DriverSQLite, filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{
			"schema_migrations", "species", "gene", "ontology_relation", "cond",
			"expression", "experiment_expression", "global_cond",
			"global_cond_to_cond", "global_expression", "global_expression_data",
		} {
			var count int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s should exist", table)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := OpenWithMigrations(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		require.NoError(t, Migrate(db, DriverSQLite, nil))

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		db.Close()

		db, err = OpenWithMigrations(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var again int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&again))
		assert.Equal(t, applied, again)
		assert.Equal(t, 3, again)
	})
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name: "statements and comment lines",
			script: `
-- header comment
CREATE TABLE a (id BIGINT);

CREATE INDEX idx_a ON a (id);
-- trailing comment
`,
			want: []string{"CREATE TABLE a (id BIGINT)", "CREATE INDEX idx_a ON a (id)"},
		},
		{
			name: "semicolon inside a comment",
			script: `-- one row per edge; roots carry a NULL parent
CREATE TABLE edge (id BIGINT);
CREATE TABLE node (id BIGINT); -- nodes; referenced by edge
`,
			want: []string{"CREATE TABLE edge (id BIGINT)", "CREATE TABLE node (id BIGINT)"},
		},
		{
			name:   "only comments",
			script: "-- nothing; to run\n\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.script))
		})
	}
}

func TestMigrateFreshSQLite(t *testing.T) {
	conn, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "fresh.db"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, DriverSQLite, zaptest.NewLogger(t).Sugar()))

	// the commented tables exist and accept rows
	_, err = conn.Exec("INSERT INTO species (species_id, name) VALUES (1, 'species')")
	require.NoError(t, err)
	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM ontology_relation").Scan(&count))
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM global_expression").Scan(&count))
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM gene WHERE species_id = ? AND gene_id = ? AND name <> '?'"

	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t,
		"SELECT * FROM gene WHERE species_id = $1 AND gene_id = $2 AND name <> '?'",
		Rebind(DriverPostgres, q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?)", Placeholders(1, 2))
	assert.Equal(t, "(?, ?, ?), (?, ?, ?)", Placeholders(2, 3))
}
