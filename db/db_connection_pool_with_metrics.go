package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// DBConnectionPoolWithMetrics decorates a DBConnectionPool so statement
// durations and pool health gauges land in the monitor service. Transactions
// it opens come back instrumented as well.
type DBConnectionPoolWithMetrics struct {
	SQLExecuterWithMetrics
	pool DBConnectionPool
}

var _ DBConnectionPool = (*DBConnectionPoolWithMetrics)(nil)

func NewDBConnectionPoolWithMetrics(ctx context.Context, dbConnectionPool DBConnectionPool, monitorService monitor.MonitorServiceInterface) (*DBConnectionPoolWithMetrics, error) {
	sqlExec, err := NewSQLExecuterWithMetrics(dbConnectionPool, monitorService)
	if err != nil {
		return nil, fmt.Errorf("instrumenting connection pool: %w", err)
	}

	registerPoolMetrics(ctx, dbConnectionPool, monitorService)

	return &DBConnectionPoolWithMetrics{
		SQLExecuterWithMetrics: *sqlExec,
		pool:                   dbConnectionPool,
	}, nil
}

// registerPoolMetrics exposes database/sql pool statistics as function
// metrics sampled at scrape time. Registration failures are logged, never
// fatal.
func registerPoolMetrics(ctx context.Context, pool DBConnectionPool, monitorService monitor.MonitorServiceInterface) {
	db, err := pool.SqlDB(ctx)
	if err != nil {
		log.Ctx(ctx).Errorf("Error getting SQL DB for db pool metrics: %s", err)
		return
	}

	labels := map[string]string{"pool": poolLabelFromDSN(ctx, pool)}

	for _, fm := range []struct {
		kind monitor.FuncMetricType
		tag  monitor.MetricTag
		help string
		get  func() float64
	}{
		{monitor.FuncGaugeType, monitor.DBMaxOpenConnectionsTag, "Maximum number of open connections to the database", func() float64 { return float64(db.Stats().MaxOpenConnections) }},
		{monitor.FuncGaugeType, monitor.DBInUseConnectionsTag, "The number of connections currently in use", func() float64 { return float64(db.Stats().InUse) }},
		{monitor.FuncGaugeType, monitor.DBIdleConnectionsTag, "The number of idle connections", func() float64 { return float64(db.Stats().Idle) }},
		{monitor.FuncCounterType, monitor.DBWaitCountTotalTag, "The total number of connections waited for", func() float64 { return float64(db.Stats().WaitCount) }},
		{monitor.FuncCounterType, monitor.DBWaitDurationSecondsTotalTag, "The total time blocked waiting for a new connection", func() float64 { return db.Stats().WaitDuration.Seconds() }},
	} {
		opts := monitor.FuncMetricOptions{
			Namespace:  monitor.DefaultNamespace,
			Subservice: string(monitor.DBSubservice),
			Name:       string(fm.tag),
			Help:       fm.help,
			Labels:     labels,
			Function:   fm.get,
		}
		if registerErr := monitorService.RegisterFunctionMetric(fm.kind, opts); registerErr != nil {
			log.Ctx(ctx).Errorf("Error registering function metric %s: %s", fm.tag, registerErr)
		}
	}
}

func (p *DBConnectionPoolWithMetrics) BeginTxx(ctx context.Context, opts *sql.TxOptions) (DBTransaction, error) {
	dbTransaction, err := p.pool.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting a new transaction: %w", err)
	}

	return NewDBTransactionWithMetrics(dbTransaction, p.monitorServiceInterface)
}

func (p *DBConnectionPoolWithMetrics) Close() error {
	return p.pool.Close()
}

func (p *DBConnectionPoolWithMetrics) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *DBConnectionPoolWithMetrics) SqlDB(ctx context.Context) (*sql.DB, error) {
	return p.pool.SqlDB(ctx)
}

func (p *DBConnectionPoolWithMetrics) SqlxDB(ctx context.Context) (*sqlx.DB, error) {
	return p.pool.SqlxDB(ctx)
}

func (p *DBConnectionPoolWithMetrics) DSN(ctx context.Context) (string, error) {
	return p.pool.DSN(ctx)
}
