package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStatementsSplitsAndStripsComments(t *testing.T) {
	script := `-- leading comment
CREATE TABLE a (
    id INTEGER PRIMARY KEY -- not stripped, mid-line
);

-- between statements
CREATE INDEX idx_a ON a (id);
`
	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.NotContains(t, stmts[0], "leading comment")
	assert.Contains(t, stmts[1], "CREATE INDEX idx_a")
	assert.NotContains(t, stmts[1], "between statements")
}

func TestSQLStatementsIgnoresTrailingWhitespace(t *testing.T) {
	assert.Empty(t, sqlStatements("-- only comments\n\n"))
	assert.Len(t, sqlStatements("SELECT 1;\n   \n"), 1)
}

func TestMigrateRecordsAppliedVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(schemaMigrations), count)

	var name string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT name FROM schema_migrations WHERE version = 1`).Scan(&name))
	assert.Equal(t, "initial_schema", name)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A second run has nothing pending and must not re-apply scripts.
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(schemaMigrations), count)
}
