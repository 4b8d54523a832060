package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

type WorkerStatus string

const (
	IdleWorkerStatus    WorkerStatus = "idle"
	BusyWorkerStatus    WorkerStatus = "busy"
	OfflineWorkerStatus WorkerStatus = "offline"
)

// Validate validates the worker status.
func (status WorkerStatus) Validate() error {
	switch status {
	case IdleWorkerStatus, BusyWorkerStatus, OfflineWorkerStatus:
		return nil
	default:
		return fmt.Errorf("invalid worker status: %s", status)
	}
}

// WorkerStatuses returns a list of all possible worker statuses.
func WorkerStatuses() []WorkerStatus {
	return []WorkerStatus{IdleWorkerStatus, BusyWorkerStatus, OfflineWorkerStatus}
}

// Worker is one registered compute node. The row survives disconnects so
// lifetime counters and the (owner, token) identity persist across sessions.
type Worker struct {
	ID            string       `json:"id" db:"id"`
	OwnerID       string       `json:"owner_id" db:"owner_id"`
	IP            string       `json:"ip" db:"ip"`
	Caps          JSONMap      `json:"caps" db:"caps"`
	Status        WorkerStatus `json:"status" db:"status"`
	AuthToken     string       `json:"-" db:"auth_token"`
	LastHeartbeat *float64     `json:"last_heartbeat" db:"last_heartbeat"`
	RegisteredAt  *float64     `json:"registered_at" db:"registered_at"`
	JobsCompleted int64        `json:"jobs_completed" db:"jobs_completed"`
	CreditsEarned float64      `json:"credits_earned" db:"credits_earned"`
}

// CanExecute reports whether the worker advertises job execution. Workers
// default to executing unless caps carry can_execute=false.
func (w Worker) CanExecute() bool {
	return w.Caps.Bool("can_execute", true)
}

type WorkerModel struct {
	dbConnectionPool db.DBConnectionPool
}

// Upsert inserts or refreshes a worker row keyed by id. registered_at and
// the lifetime counters survive re-registration, and a hello without
// credentials cannot blank a stored owner or token. When the worker presents
// an owner and token, the (owner, token) auth pair is stored in the same
// transaction.
func (w *WorkerModel) Upsert(ctx context.Context, worker Worker) (*Worker, error) {
	if worker.ID == "" {
		return nil, ErrMissingInput
	}
	if worker.Status == "" {
		worker.Status = IdleWorkerStatus
	}
	if err := worker.Status.Validate(); err != nil {
		return nil, err
	}
	now := utils.NowEpoch()

	return db.RunInTransactionWithResult(ctx, w.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*Worker, error) {
		const query = `
			INSERT INTO workers
				(id, owner_id, ip, caps, status, auth_token, last_heartbeat, registered_at)
			VALUES
				(?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = CASE WHEN excluded.owner_id = '' THEN workers.owner_id ELSE excluded.owner_id END,
				ip = excluded.ip,
				caps = excluded.caps,
				status = excluded.status,
				auth_token = CASE WHEN excluded.auth_token = '' THEN workers.auth_token ELSE excluded.auth_token END,
				last_heartbeat = excluded.last_heartbeat
			RETURNING *
		`

		var upserted Worker
		err := dbTx.GetContext(ctx, &upserted, query,
			worker.ID, worker.OwnerID, worker.IP, worker.Caps, worker.Status, worker.AuthToken, now, now)
		if err != nil {
			return nil, fmt.Errorf("error upserting worker %s: %w", worker.ID, err)
		}

		if worker.OwnerID != "" && worker.AuthToken != "" {
			const authQuery = `
				INSERT INTO user_auth
					(user_id, auth_token, created_at)
				VALUES
					(?, ?, ?)
				ON CONFLICT(user_id) DO UPDATE SET
					auth_token = excluded.auth_token
			`
			if _, err = dbTx.ExecContext(ctx, authQuery, worker.OwnerID, worker.AuthToken, now); err != nil {
				return nil, fmt.Errorf("error registering auth pair for owner %s: %w", worker.OwnerID, err)
			}
		}

		return &upserted, nil
	})
}

func (w *WorkerModel) Get(ctx context.Context, id string) (*Worker, error) {
	var worker Worker
	const query = `
		SELECT
			*
		FROM
			workers
		WHERE
			id = ?
	`

	err := w.dbConnectionPool.GetContext(ctx, &worker, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error querying worker ID %s: %w", id, err)
	}
	return &worker, nil
}

func (w *WorkerModel) GetAll(ctx context.Context) ([]Worker, error) {
	workers := []Worker{}
	const query = `
		SELECT
			*
		FROM
			workers
		ORDER BY
			registered_at
	`

	err := w.dbConnectionPool.SelectContext(ctx, &workers, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting workers: %w", err)
	}
	return workers, nil
}

// GetByOwnerAndToken finds the worker row a reconnecting session may adopt.
func (w *WorkerModel) GetByOwnerAndToken(ctx context.Context, ownerID, authToken string) (*Worker, error) {
	if ownerID == "" || authToken == "" {
		return nil, ErrMissingInput
	}

	var worker Worker
	const query = `
		SELECT
			*
		FROM
			workers
		WHERE
			owner_id = ? AND auth_token = ?
	`

	err := w.dbConnectionPool.GetContext(ctx, &worker, query, ownerID, authToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error querying worker for owner %s: %w", ownerID, err)
	}
	return &worker, nil
}

// SetStatus updates the worker's status and refreshes its heartbeat. Status
// changes only arrive over a live connection, so they double as liveness.
func (w *WorkerModel) SetStatus(ctx context.Context, id string, status WorkerStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE workers
		SET
			status = ?,
			last_heartbeat = ?
		WHERE
			id = ?
	`

	result, err := w.dbConnectionPool.ExecContext(ctx, query, status, utils.NowEpoch(), id)
	if err != nil {
		return fmt.Errorf("error setting status of worker %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for worker %s: %w", id, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetOffline marks the worker offline without touching last_heartbeat, so the
// watchdog still sees when it was last alive.
func (w *WorkerModel) SetOffline(ctx context.Context, id string) error {
	const query = `UPDATE workers SET status = ? WHERE id = ?`

	result, err := w.dbConnectionPool.ExecContext(ctx, query, OfflineWorkerStatus, id)
	if err != nil {
		return fmt.Errorf("error setting worker %s offline: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for worker %s: %w", id, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (w *WorkerModel) TouchHeartbeat(ctx context.Context, id string) error {
	const query = `UPDATE workers SET last_heartbeat = ? WHERE id = ?`

	result, err := w.dbConnectionPool.ExecContext(ctx, query, utils.NowEpoch(), id)
	if err != nil {
		return fmt.Errorf("error touching heartbeat of worker %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for worker %s: %w", id, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AddEarnings accumulates a settlement reward into the worker's lifetime
// counter. Non-positive amounts are a no-op.
func (w *WorkerModel) AddEarnings(ctx context.Context, sqlExec db.SQLExecuter, id string, amount float64) error {
	if amount <= 0 {
		return nil
	}

	const query = `
		UPDATE workers
		SET
			credits_earned = credits_earned + ?
		WHERE
			id = ?
	`

	result, err := sqlExec.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("error adding earnings to worker %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for worker %s: %w", id, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
