package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// QueryType buckets statements for the query-duration metric so dashboards
// can tell reads from writes.
type QueryType string

const (
	DeleteQueryType    QueryType = "DELETE"
	InsertQueryType    QueryType = "INSERT"
	PragmaQueryType    QueryType = "PRAGMA"
	SelectQueryType    QueryType = "SELECT"
	UndefinedQueryType QueryType = "UNDEFINED"
	UpdateQueryType    QueryType = "UPDATE"
)

// SQLExecuterWithMetrics times every statement that goes through the wrapped
// SQLExecuter and reports the duration to the monitor service.
type SQLExecuterWithMetrics struct {
	SQLExecuter
	monitorServiceInterface monitor.MonitorServiceInterface
}

var _ SQLExecuter = (*SQLExecuterWithMetrics)(nil)

func NewSQLExecuterWithMetrics(sqlExec SQLExecuter, monitorServiceInterface monitor.MonitorServiceInterface) (*SQLExecuterWithMetrics, error) {
	if sqlExec == nil {
		return nil, fmt.Errorf("sqlExec cannot be nil")
	}
	if monitorServiceInterface == nil {
		return nil, fmt.Errorf("monitorServiceInterface cannot be nil")
	}

	return &SQLExecuterWithMetrics{
		SQLExecuter:             sqlExec,
		monitorServiceInterface: monitorServiceInterface,
	}, nil
}

// observeQuery reports one statement's duration. Metric failures are logged
// and swallowed; instrumentation must never fail a query.
func (w *SQLExecuterWithMetrics) observeQuery(start time.Time, query string, err error) {
	labels := monitor.DBQueryLabels{QueryType: string(getQueryType(query))}
	if metricErr := w.monitorServiceInterface.MonitorDBQueryDuration(time.Since(start), getMetricTag(err), labels); metricErr != nil {
		log.Errorf("Error monitoring db query duration: %s", metricErr)
	}
}

func (w *SQLExecuterWithMetrics) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := w.SQLExecuter.ExecContext(ctx, query, args...)
	w.observeQuery(start, query, err)
	return result, err
}

func (w *SQLExecuterWithMetrics) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := w.SQLExecuter.GetContext(ctx, dest, query, args...)
	w.observeQuery(start, query, err)
	return err
}

func (w *SQLExecuterWithMetrics) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := w.SQLExecuter.SelectContext(ctx, dest, query, args...)
	w.observeQuery(start, query, err)
	return err
}

func (w *SQLExecuterWithMetrics) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := w.SQLExecuter.QueryContext(ctx, query, args...)
	w.observeQuery(start, query, err)
	return rows, err
}

func (w *SQLExecuterWithMetrics) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := w.SQLExecuter.QueryxContext(ctx, query, args...)
	w.observeQuery(start, query, err)
	return rows, err
}

// QueryRowxContext defers the error to the returned row, so the row's own
// Err decides the metric tag.
func (w *SQLExecuterWithMetrics) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	start := time.Now()
	row := w.SQLExecuter.QueryRowxContext(ctx, query, args...)
	w.observeQuery(start, query, row.Err())
	return row
}

func getMetricTag(err error) monitor.MetricTag {
	if err != nil {
		return monitor.FailureQueryDurationTag
	}
	return monitor.SuccessfulQueryDurationTag
}

// getQueryType picks the metric bucket from the statement's first keyword.
func getQueryType(query string) QueryType {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return UndefinedQueryType
	}
	switch kw := strings.ToUpper(fields[0]); kw {
	case "DELETE", "INSERT", "PRAGMA", "SELECT", "UPDATE":
		return QueryType(kw)
	}
	return UndefinedQueryType
}
