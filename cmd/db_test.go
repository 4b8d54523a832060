package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridx-network/gridx-coordinator/db"
)

// runDBCommand executes the CLI with the given args and returns everything
// written to the command output and the log.
func runDBCommand(t *testing.T, args ...string) string {
	t.Helper()

	buf := new(strings.Builder)
	log.DefaultLogger.SetOutput(buf)

	rootCmd := SetupCLI("x.y.z", "1234567890abcdef")
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())

	return buf.String()
}

func appliedMigrations(t *testing.T, ctx context.Context, dbConnectionPool db.DBConnectionPool) []string {
	t.Helper()

	ids := []string{}
	err := dbConnectionPool.SelectContext(ctx, &ids, "SELECT id FROM gridx_migrations ORDER BY id")
	require.NoError(t, err)
	return ids
}

func Test_DatabaseCommand_db_help(t *testing.T) {
	expectedContains := []string{
		"Database related commands",
		"gridx-coordinator db [flags]",
		"gridx-coordinator db [command]",
		"Schema migration helpers. The migrations are tracked in the table `gridx_migrations`.",
		`Path to the SQLite database file. The parent directory is created when missing. (GRIDX_DB_PATH) (default "./data/gridx.db")`,
		`The environment where the application is running. Example: "dev", "staging", "production". (GRIDX_ENVIRONMENT) (default "dev")`,
		`The log level used in this project. Options: "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL", or "PANIC". (GRIDX_LOG_LEVEL) (default "INFO")`,
		`The DSN (client key) of the Sentry project. If not provided, Sentry will not be used. (GRIDX_SENTRY_DSN)`,
	}

	for _, args := range [][]string{{"db"}, {"db", "--help"}} {
		output := runDBCommand(t, args...)
		for _, expected := range expectedContains {
			assert.Contains(t, output, expected)
		}
	}
}

func Test_DatabaseCommand_db_migrate(t *testing.T) {
	t.Run("migrate usage", func(t *testing.T) {
		output := runDBCommand(t, "db", "migrate")

		expectedContains := []string{
			"Schema migration helpers",
			"gridx-coordinator db migrate [flags]",
			"gridx-coordinator db migrate [command]",
			"Migrates database down [count] migrations",
			"Migrates database up [count] migrations",
		}
		for _, expected := range expectedContains {
			assert.Contains(t, output, expected)
		}
	})

	t.Run("migrate up and down", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "gridx.db")
		ctx := context.Background()

		output := runDBCommand(t, "db", "migrate", "up", "1", "--db-path", dbPath, "--log-level", "TRACE")
		assert.Contains(t, output, "Successfully applied 1 migrations up.")

		dbConnectionPool, err := db.OpenDBConnectionPool(db.SQLiteDSN(dbPath))
		require.NoError(t, err)
		defer dbConnectionPool.Close()

		assert.Equal(t, []string{"2025-06-14.0-initial.sql"}, appliedMigrations(t, ctx, dbConnectionPool))

		output = runDBCommand(t, "db", "migrate", "up", "--db-path", dbPath, "--log-level", "TRACE")
		assert.Contains(t, output, "Successfully applied 1 migrations up.")
		assert.Equal(t, []string{"2025-06-14.0-initial.sql", "2025-07-02.0-add-jobs-duration-seconds.sql"}, appliedMigrations(t, ctx, dbConnectionPool))

		output = runDBCommand(t, "db", "migrate", "down", "1", "--db-path", dbPath, "--log-level", "TRACE")
		assert.Contains(t, output, "Successfully applied 1 migrations down.")
		assert.Equal(t, []string{"2025-06-14.0-initial.sql"}, appliedMigrations(t, ctx, dbConnectionPool))
	})

	t.Run("migrate up with no pending migrations", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "gridx.db")

		output := runDBCommand(t, "db", "migrate", "up", "--db-path", dbPath, "--log-level", "TRACE")
		assert.Contains(t, output, "Successfully applied 2 migrations up.")

		output = runDBCommand(t, "db", "migrate", "up", "--db-path", dbPath, "--log-level", "TRACE")
		assert.Contains(t, output, "No migrations applied.")
	})
}
