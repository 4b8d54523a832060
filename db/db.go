//nolint:wrapcheck // thin pass-through wrappers, wrapping adds no context
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stellar/go/support/log"
)

const (
	DefaultConnMaxIdleTimeSeconds = 10
	DefaultConnMaxLifetimeSeconds = 300

	// sqliteBusyTimeout is how long a connection queues on the writer lock
	// before surfacing SQLITE_BUSY.
	sqliteBusyTimeout = 5 * time.Second

	openPingAttempts = 3
)

// DBPoolConfig represents tunables for the sql.DB pool.
type DBPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// SQLite in WAL mode serves any number of readers but a single writer, so the
// pool stays small.
var DefaultDBPoolConfig = DBPoolConfig{
	MaxOpenConns:    10,
	MaxIdleConns:    2,
	ConnMaxIdleTime: DefaultConnMaxIdleTimeSeconds * time.Second,
	ConnMaxLifetime: DefaultConnMaxLifetimeSeconds * time.Second,
}

// SQLiteDSN builds the data source name for a coordinator database file.
// WAL keeps readers unblocked by the writer; _txlock=immediate makes every
// transaction take the write lock up front, so concurrent compare-and-swap
// transitions queue on the busy timeout instead of failing mid-transaction.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", strconv.Itoa(int(sqliteBusyTimeout/time.Millisecond)))
	q.Set("_foreign_keys", "true")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// EnsureDirFor creates the parent directory of the database file when absent.
func EnsureDirFor(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %q: %w", dir, err)
	}
	return nil
}

// SQLExecuter is the query surface shared by the pool and by transactions.
// Store methods accept it so the same query code runs inside and outside a
// transaction.
type SQLExecuter interface {
	DriverName() string
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	sqlx.PreparerContext
	sqlx.QueryerContext
	Rebind(query string) string
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DBTransaction is the slice of *sqlx.Tx the store layer depends on.
type DBTransaction interface {
	SQLExecuter
	Rollback() error
	Commit() error
}

// DBConnectionPool is the slice of *sqlx.DB the rest of the coordinator
// depends on. The metrics decorator wraps this interface rather than sqlx
// directly.
type DBConnectionPool interface {
	SQLExecuter
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (DBTransaction, error)
	Close() error
	Ping(ctx context.Context) error
	SqlDB(ctx context.Context) (*sql.DB, error)
	SqlxDB(ctx context.Context) (*sqlx.DB, error)
	DSN(ctx context.Context) (string, error)
}

var (
	_ SQLExecuter      = (*sqlx.DB)(nil)
	_ SQLExecuter      = (*sqlx.Tx)(nil)
	_ DBTransaction    = (*sqlx.Tx)(nil)
	_ DBConnectionPool = (*DBConnectionPoolImplementation)(nil)
)

// DBConnectionPoolImplementation backs DBConnectionPool with a plain sqlx.DB.
type DBConnectionPoolImplementation struct {
	*sqlx.DB
	dataSourceName string
}

func (db *DBConnectionPoolImplementation) BeginTxx(ctx context.Context, opts *sql.TxOptions) (DBTransaction, error) {
	return db.DB.BeginTxx(ctx, opts)
}

func (db *DBConnectionPoolImplementation) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func (db *DBConnectionPoolImplementation) SqlDB(ctx context.Context) (*sql.DB, error) {
	if db.DB == nil || db.DB.DB == nil {
		return nil, fmt.Errorf("sql.DB is not initialized")
	}
	return db.DB.DB, nil
}

func (db *DBConnectionPoolImplementation) SqlxDB(ctx context.Context) (*sqlx.DB, error) {
	if db.DB == nil {
		return nil, fmt.Errorf("sqlx.DB is not initialized")
	}
	return db.DB, nil
}

func (db *DBConnectionPoolImplementation) DSN(ctx context.Context) (string, error) {
	return db.dataSourceName, nil
}

// OpenDBConnectionPoolWithConfig opens and pings a connection pool over the
// coordinator database file.
func OpenDBConnectionPoolWithConfig(dataSourceName string, cfg DBPoolConfig) (DBConnectionPool, error) {
	sqlxDB, err := sqlx.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error creating app DB connection pool: %w", err)
	}

	sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlxDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// The database file can live on a volume that attaches after the process
	// starts, so the first ping gets a few attempts.
	err = retry.Do(
		sqlxDB.Ping,
		retry.Attempts(openPingAttempts),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("error pinging app DB connection pool: %w", err)
	}

	return &DBConnectionPoolImplementation{DB: sqlxDB, dataSourceName: dataSourceName}, nil
}

// OpenDBConnectionPool opens a pool with the default SQLite-sized settings.
func OpenDBConnectionPool(dataSourceName string) (DBConnectionPool, error) {
	return OpenDBConnectionPoolWithConfig(dataSourceName, DefaultDBPoolConfig)
}

// CloseConnectionPoolIfNeeded closes the pool unless it is nil or already
// closed, so shutdown paths can call it without tracking pool state.
func CloseConnectionPoolIfNeeded(ctx context.Context, dbConnectionPool DBConnectionPool) error {
	if dbConnectionPool == nil {
		log.Ctx(ctx).Info("skipping close, the connection pool is nil")
		return nil
	}

	//nolint:nilerr // a failed ping means the pool is already unusable
	if err := dbConnectionPool.Ping(ctx); err != nil {
		log.Ctx(ctx).Info("skipping close, the connection pool is already closed")
		return nil
	}

	return dbConnectionPool.Close()
}

// TransactionExecutionError marks an error as coming from the caller's
// function inside RunInTransaction, as opposed to begin/commit plumbing.
type TransactionExecutionError struct {
	err error
}

func NewTransactionExecutionError(err error) *TransactionExecutionError {
	return &TransactionExecutionError{err: err}
}

func (t *TransactionExecutionError) Error() string {
	return fmt.Sprintf("transaction execution error: %s", t.err.Error())
}

func (t *TransactionExecutionError) Unwrap() error {
	return t.err
}

// IsTransactionExecutionError reports whether err originated from the atomic
// function rather than from transaction handling.
func IsTransactionExecutionError(err error) bool {
	var eErr *TransactionExecutionError
	return errors.As(err, &eErr)
}

// rollbackOnError rolls the transaction back when err is non-nil. Errors the
// atomic function produced itself are expected and logged at debug level.
func rollbackOnError(ctx context.Context, dbTx DBTransaction, err error) {
	if err == nil {
		return
	}

	if IsTransactionExecutionError(err) {
		log.Ctx(ctx).Debugf("rolling back transaction: %s", err.Error())
	} else {
		log.Ctx(ctx).Errorf("rolling back transaction: %s", err.Error())
	}
	if errRollBack := dbTx.Rollback(); errRollBack != nil {
		log.Ctx(ctx).Errorf("error in database transaction rollback: %s", errRollBack.Error())
	}
}

// RunInTransactionWithResult runs atomicFunction inside a transaction and
// returns its result. The transaction commits when the function returns nil
// and rolls back otherwise.
func RunInTransactionWithResult[T any](ctx context.Context, dbConnectionPool DBConnectionPool, opts *sql.TxOptions, atomicFunction func(dbTx DBTransaction) (T, error)) (result T, err error) {
	dbTx, err := dbConnectionPool.BeginTxx(ctx, opts)
	if err != nil {
		return *new(T), fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		rollbackOnError(ctx, dbTx, err)
	}()

	result, err = atomicFunction(dbTx)
	if err != nil {
		return *new(T), NewTransactionExecutionError(err)
	}

	if err = dbTx.Commit(); err != nil {
		return *new(T), fmt.Errorf("committing transaction: %w", err)
	}

	return result, nil
}

// RunInTransaction is RunInTransactionWithResult for functions that only
// return an error.
func RunInTransaction(ctx context.Context, dbConnectionPool DBConnectionPool, opts *sql.TxOptions, atomicFunction func(dbTx DBTransaction) error) error {
	_, err := RunInTransactionWithResult(ctx, dbConnectionPool, opts, func(dbTx DBTransaction) (struct{}, error) {
		return struct{}{}, atomicFunction(dbTx)
	})
	return err
}

// poolLabelFromDSN extracts the database file name from a DSN for metric
// labels.
func poolLabelFromDSN(ctx context.Context, dbConnectionPool DBConnectionPool) string {
	dsn, dsnErr := dbConnectionPool.DSN(ctx)
	if dsnErr != nil {
		log.Ctx(ctx).Errorf("Error getting DSN from DBConnectionPool: %s", dsnErr)
		return "unknown"
	}

	if u, err := url.Parse(dsn); err == nil {
		// Relative paths parse as opaque, absolute paths as a rooted path.
		if u.Opaque != "" {
			return filepath.Base(u.Opaque)
		}
		if u.Path != "" {
			return filepath.Base(u.Path)
		}
	}
	return filepath.Base(dsn)
}
