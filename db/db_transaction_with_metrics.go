package db

import (
	"fmt"

	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// DBTransactionWithMetrics times statements that run inside a transaction the
// same way the instrumented pool times its own. Commit and Rollback pass
// through untimed.
type DBTransactionWithMetrics struct {
	SQLExecuterWithMetrics
	tx DBTransaction
}

var _ DBTransaction = (*DBTransactionWithMetrics)(nil)

func NewDBTransactionWithMetrics(dbTransaction DBTransaction, monitorService monitor.MonitorServiceInterface) (*DBTransactionWithMetrics, error) {
	sqlExec, err := NewSQLExecuterWithMetrics(dbTransaction, monitorService)
	if err != nil {
		return nil, fmt.Errorf("instrumenting transaction: %w", err)
	}

	return &DBTransactionWithMetrics{
		SQLExecuterWithMetrics: *sqlExec,
		tx:                     dbTransaction,
	}, nil
}

func (t *DBTransactionWithMetrics) Commit() error {
	return t.tx.Commit()
}

func (t *DBTransactionWithMetrics) Rollback() error {
	return t.tx.Rollback()
}
