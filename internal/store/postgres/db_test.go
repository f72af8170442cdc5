package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStatementTimeoutMS_ConfigOverride(t *testing.T) {
	resolved, err := resolveStatementTimeoutMS(Config{
		StatementTimeoutMS: 45000,
	})

	require.NoError(t, err)
	assert.Equal(t, 45000, resolved)
}

func TestResolveStatementTimeoutMS_ConfigInvalidValue(t *testing.T) {
	_, err := resolveStatementTimeoutMS(Config{
		StatementTimeoutMS: -1,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of allowed range")
}

func TestResolveStatementTimeoutMS_EnvFallback(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "45000")

	resolved, err := resolveStatementTimeoutMS(Config{})
	require.NoError(t, err)
	assert.Equal(t, 45000, resolved)
}

func TestResolveStatementTimeoutMS_EnvInvalidValue(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "invalid")

	_, err := resolveStatementTimeoutMS(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_STATEMENT_TIMEOUT_MS")
}

func TestAppendStatementTimeout(t *testing.T) {
	assert.Equal(t,
		"postgres://localhost/payrail?options=-c%20statement_timeout%3D30000",
		appendStatementTimeout("postgres://localhost/payrail", 30000),
	)
	assert.Equal(t,
		"postgres://localhost/payrail?sslmode=disable&options=-c%20statement_timeout%3D5000",
		appendStatementTimeout("postgres://localhost/payrail?sslmode=disable", 5000),
	)
}

func TestMigrations_VersionsUniqueAndOrdered(t *testing.T) {
	seen := map[string]bool{}
	prev := ""
	for _, m := range migrations {
		require.NotEmpty(t, m.version)
		require.NotEmpty(t, m.sql)
		assert.False(t, seen[m.version], "duplicate migration version %s", m.version)
		seen[m.version] = true
		assert.Greater(t, m.version, prev, "migrations must be declared in order")
		prev = m.version
	}
}
