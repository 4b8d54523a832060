package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

type JobStatus string

const (
	QueuedJobStatus    JobStatus = "queued"
	RunningJobStatus   JobStatus = "running"
	CompletedJobStatus JobStatus = "completed"
	FailedJobStatus    JobStatus = "failed"
	CancelledJobStatus JobStatus = "cancelled"
)

// Validate validates the job status.
func (status JobStatus) Validate() error {
	switch status {
	case QueuedJobStatus, RunningJobStatus, CompletedJobStatus, FailedJobStatus, CancelledJobStatus:
		return nil
	default:
		return fmt.Errorf("invalid job status: %s", status)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (status JobStatus) IsTerminal() bool {
	return status == CompletedJobStatus || status == FailedJobStatus || status == CancelledJobStatus
}

// JobStatuses returns a list of all possible job statuses.
func JobStatuses() []JobStatus {
	return []JobStatus{QueuedJobStatus, RunningJobStatus, CompletedJobStatus, FailedJobStatus, CancelledJobStatus}
}

type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageNode       Language = "node"
	LanguageBash       Language = "bash"
)

// Validate validates the language tag.
func (l Language) Validate() error {
	switch l {
	case LanguagePython, LanguageJavaScript, LanguageNode, LanguageBash:
		return nil
	default:
		return fmt.Errorf("invalid language: %s", l)
	}
}

func Languages() []Language {
	return []Language{LanguagePython, LanguageJavaScript, LanguageNode, LanguageBash}
}

// Job is one unit of user-submitted code. Timestamps are float seconds since
// the epoch. Rows are never deleted; terminal jobs keep their outputs.
type Job struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Code            string    `json:"code" db:"code"`
	Language        Language  `json:"language" db:"language"`
	Status          JobStatus `json:"status" db:"status"`
	WorkerID        *string   `json:"worker_id" db:"worker_id"`
	CreatedAt       float64   `json:"created_at" db:"created_at"`
	StartedAt       *float64  `json:"started_at" db:"started_at"`
	CompletedAt     *float64  `json:"completed_at" db:"completed_at"`
	Stdout          string    `json:"stdout" db:"stdout"`
	Stderr          string    `json:"stderr" db:"stderr"`
	ExitCode        *int64    `json:"exit_code" db:"exit_code"`
	Limits          JSONMap   `json:"limits" db:"limits"`
	Cost            float64   `json:"cost" db:"cost"`
	DurationSeconds *float64  `json:"duration_seconds" db:"duration_seconds"`
}

// TimeoutSeconds reads the per-job timeout from the limits blob, falling back
// to def when the job carries none.
func (j Job) TimeoutSeconds(def int) int {
	if t := j.Limits.Int("timeout_s", 0); t > 0 {
		return t
	}
	return def
}

type JobModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (j *JobModel) Insert(ctx context.Context, job Job) (*Job, error) {
	if job.ID == "" || job.UserID == "" {
		return nil, ErrMissingInput
	}
	if job.Language == "" {
		job.Language = LanguagePython
	}
	if job.Status == "" {
		job.Status = QueuedJobStatus
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = utils.NowEpoch()
	}

	const query = `
		INSERT INTO jobs
			(id, user_id, code, language, status, created_at, limits, cost)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`

	var inserted Job
	err := j.dbConnectionPool.GetContext(ctx, &inserted, query,
		job.ID, job.UserID, job.Code, job.Language, job.Status, job.CreatedAt, job.Limits, job.Cost)
	if err != nil {
		return nil, fmt.Errorf("error inserting job %s: %w", job.ID, err)
	}
	return &inserted, nil
}

func (j *JobModel) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	const query = `
		SELECT
			*
		FROM
			jobs
		WHERE
			id = ?
	`

	err := j.dbConnectionPool.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error querying job ID %s: %w", id, err)
	}
	return &job, nil
}

// ListBySubmitter returns the submitter's jobs, newest first. The limit is
// clamped to [1, 100].
func (j *JobModel) ListBySubmitter(ctx context.Context, userID string, limit int) ([]Job, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	jobs := []Job{}
	const query = `
		SELECT
			*
		FROM
			jobs
		WHERE
			user_id = ?
		ORDER BY
			created_at DESC
		LIMIT ?
	`

	err := j.dbConnectionPool.SelectContext(ctx, &jobs, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error selecting jobs for user %s: %w", userID, err)
	}
	return jobs, nil
}

// ListQueuedIDs returns the ids of all queued jobs in submission order. The
// dispatch queue is memory-only, so a restart reloads it from these rows.
func (j *JobModel) ListQueuedIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	const query = `
		SELECT
			id
		FROM
			jobs
		WHERE
			status = ?
		ORDER BY
			created_at ASC, rowid ASC
	`

	err := j.dbConnectionPool.SelectContext(ctx, &ids, query, QueuedJobStatus)
	if err != nil {
		return nil, fmt.Errorf("error selecting queued job ids: %w", err)
	}
	return ids, nil
}

// ListRunning returns all jobs currently marked running, for the watchdog
// sweep.
func (j *JobModel) ListRunning(ctx context.Context) ([]Job, error) {
	jobs := []Job{}
	const query = `
		SELECT
			*
		FROM
			jobs
		WHERE
			status = ?
	`

	err := j.dbConnectionPool.SelectContext(ctx, &jobs, query, RunningJobStatus)
	if err != nil {
		return nil, fmt.Errorf("error selecting running jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus performs a plain single-row status update without any
// precondition. Transition-guarded paths use Assign, Complete or Requeue.
func (j *JobModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, id string, status JobStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	const query = `UPDATE jobs SET status = ? WHERE id = ?`
	result, err := sqlExec.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("error updating status of job %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for job %s: %w", id, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Assign atomically moves a queued job to running on the given worker and
// marks the worker busy. Returns false when the job was no longer queued,
// which loses the compare-and-swap to a concurrent assignment.
func (j *JobModel) Assign(ctx context.Context, jobID, workerID string) (bool, error) {
	now := utils.NowEpoch()

	return db.RunInTransactionWithResult(ctx, j.dbConnectionPool, nil, func(dbTx db.DBTransaction) (bool, error) {
		const casQuery = `
			UPDATE jobs
			SET
				status = ?,
				worker_id = ?,
				started_at = ?
			WHERE
				id = ? AND status = ?
		`
		result, err := dbTx.ExecContext(ctx, casQuery, RunningJobStatus, workerID, now, jobID, QueuedJobStatus)
		if err != nil {
			return false, fmt.Errorf("error assigning job %s to worker %s: %w", jobID, workerID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("error getting rows affected assigning job %s: %w", jobID, err)
		}
		if rows == 0 {
			return false, nil
		}

		const workerQuery = `
			UPDATE workers
			SET
				status = ?,
				last_heartbeat = ?
			WHERE
				id = ?
		`
		if _, err = dbTx.ExecContext(ctx, workerQuery, BusyWorkerStatus, now, workerID); err != nil {
			return false, fmt.Errorf("error marking worker %s busy for job %s: %w", workerID, jobID, err)
		}
		return true, nil
	})
}

// Complete finalizes a running job with the worker's result. Exit code zero
// lands on completed and bumps the worker's jobs_completed; anything else
// lands on failed. The precondition (status running AND assigned to this
// worker) makes redelivered or stale-session results no-ops: the method
// returns false and writes nothing.
func (j *JobModel) Complete(ctx context.Context, jobID, workerID string, stdout, stderr string, exitCode int64) (bool, error) {
	now := utils.NowEpoch()

	status := CompletedJobStatus
	if exitCode != 0 {
		status = FailedJobStatus
	}

	return db.RunInTransactionWithResult(ctx, j.dbConnectionPool, nil, func(dbTx db.DBTransaction) (bool, error) {
		const jobQuery = `
			UPDATE jobs
			SET
				status = ?,
				completed_at = ?,
				stdout = ?,
				stderr = ?,
				exit_code = ?
			WHERE
				id = ? AND status = ? AND worker_id = ?
		`
		result, err := dbTx.ExecContext(ctx, jobQuery, status, now, stdout, stderr, exitCode, jobID, RunningJobStatus, workerID)
		if err != nil {
			return false, fmt.Errorf("error completing job %s: %w", jobID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("error getting rows affected completing job %s: %w", jobID, err)
		}
		if rows == 0 {
			return false, nil
		}

		workerQuery := `UPDATE workers SET status = ?, last_heartbeat = ? WHERE id = ?`
		args := []any{IdleWorkerStatus, now, workerID}
		if exitCode == 0 {
			workerQuery = `UPDATE workers SET status = ?, last_heartbeat = ?, jobs_completed = jobs_completed + 1 WHERE id = ?`
		}
		if _, err = dbTx.ExecContext(ctx, workerQuery, args...); err != nil {
			return false, fmt.Errorf("error marking worker %s idle after job %s: %w", workerID, jobID, err)
		}
		return true, nil
	})
}

// MarkStarted stamps started_at if the job does not carry one yet. Workers
// report job_started after the assignment already stamped it, so this is
// usually a no-op; it matters when the assignment raced a requeue.
func (j *JobModel) MarkStarted(ctx context.Context, jobID string) error {
	const query = `
		UPDATE jobs
		SET
			started_at = ?
		WHERE
			id = ? AND started_at IS NULL
	`

	if _, err := j.dbConnectionPool.ExecContext(ctx, query, utils.NowEpoch(), jobID); err != nil {
		return fmt.Errorf("error marking job %s started: %w", jobID, err)
	}
	return nil
}

// RecordSettlement stores the billed duration and the actual cost computed at
// settlement, overwriting the reserved cost. A nil duration stays NULL on the
// row.
func (j *JobModel) RecordSettlement(ctx context.Context, jobID string, durationSeconds *float64, cost float64) error {
	const query = `
		UPDATE jobs
		SET
			duration_seconds = ?,
			cost = ?
		WHERE
			id = ?
	`

	result, err := j.dbConnectionPool.ExecContext(ctx, query, durationSeconds, cost, jobID)
	if err != nil {
		return fmt.Errorf("error recording settlement for job %s: %w", jobID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for job %s settlement: %w", jobID, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Requeue sends a single running job back to the queue, clearing its worker
// binding and start time.
func (j *JobModel) Requeue(ctx context.Context, jobID string) error {
	const query = `
		UPDATE jobs
		SET
			status = ?,
			worker_id = NULL,
			started_at = NULL
		WHERE
			id = ?
	`

	result, err := j.dbConnectionPool.ExecContext(ctx, query, QueuedJobStatus, jobID)
	if err != nil {
		return fmt.Errorf("error requeueing job %s: %w", jobID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected requeueing job %s: %w", jobID, err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RequeueAllForWorker sends every running job bound to the worker back to the
// queue and returns their IDs so the caller can re-enqueue them in memory.
func (j *JobModel) RequeueAllForWorker(ctx context.Context, workerID string) ([]string, error) {
	const query = `
		UPDATE jobs
		SET
			status = ?,
			worker_id = NULL,
			started_at = NULL
		WHERE
			worker_id = ? AND status = ?
		RETURNING id
	`

	jobIDs := []string{}
	err := j.dbConnectionPool.SelectContext(ctx, &jobIDs, query, QueuedJobStatus, workerID, RunningJobStatus)
	if err != nil {
		return nil, fmt.Errorf("error requeueing jobs of worker %s: %w", workerID, err)
	}
	return jobIDs, nil
}
