package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridx-network/gridx-coordinator/db/dbtest"
)

// openTestPool opens a pool against a fresh migrated database in the test's
// temp dir. The pool is closed with the test.
func openTestPool(t *testing.T) DBConnectionPool {
	t.Helper()

	pool, err := OpenDBConnectionPool(dbtest.Open(t).DSN)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	return pool
}
