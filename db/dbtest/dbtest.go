// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/gridx-network/gridx-coordinator/db/migrations"
)

const migrationsTableName = "gridx_migrations"

// DB points at a database file that lives inside the test's temp directory
// and disappears with it.
type DB struct {
	DSN  string
	Path string
}

// Close is a no-op kept for call-site symmetry; the file is removed with the
// test's temp dir.
func (d *DB) Close() {}

// OpenWithoutMigrations creates an empty database file. The DSN carries the
// same pragmas the coordinator runs with.
func OpenWithoutMigrations(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gridx-test.db")

	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "true")
	q.Set("_txlock", "immediate")

	return &DB{DSN: "file:" + path + "?" + q.Encode(), Path: path}
}

// Open creates a database file with all migrations applied.
func Open(t *testing.T) *DB {
	t.Helper()

	d := OpenWithoutMigrations(t)

	conn, err := sqlx.Open("sqlite3", d.DSN)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	defer conn.Close()

	ms := migrate.MigrationSet{TableName: migrationsTableName}
	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	if _, err = ms.ExecMax(conn.DB, "sqlite3", m, migrate.Up, 0); err != nil {
		t.Fatalf("applying test migrations: %v", err)
	}

	return d
}
