package db

import (
	"context"
	"fmt"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/gridx-network/gridx-coordinator/db/migrations"
)

// MigrationsTableName is where sql-migrate records applied migrations.
const MigrationsTableName = "gridx_migrations"

// Migrate applies up to count migrations in the given direction against the
// database at dbURL. A count of zero applies everything that is pending.
func Migrate(dbURL string, dir migrate.MigrationDirection, count int) (int, error) {
	dbConnectionPool, err := OpenDBConnectionPool(dbURL)
	if err != nil {
		return 0, fmt.Errorf("opening database at %q: %w", dbURL, err)
	}
	defer dbConnectionPool.Close()

	sqlDB, err := dbConnectionPool.SqlDB(context.Background())
	if err != nil {
		return 0, fmt.Errorf("fetching sql.DB: %w", err)
	}

	ms := migrate.MigrationSet{TableName: MigrationsTableName}
	source := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	return ms.ExecMax(sqlDB, dbConnectionPool.DriverName(), source, dir, count)
}
