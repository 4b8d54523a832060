package data

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// CreateJobFixture creates a job row, filling any zero field with a usable
// default, and returns the row as stored.
func CreateJobFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, j *Job) *Job {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.UserID == "" {
		j.UserID = "demo"
	}
	if j.Code == "" {
		j.Code = `print("hello")`
	}
	if j.Language == "" {
		j.Language = LanguagePython
	}
	if j.Status == "" {
		j.Status = QueuedJobStatus
	}
	if j.CreatedAt == 0 {
		j.CreatedAt = utils.NowEpoch()
	}

	const query = `
		INSERT INTO jobs
			(id, user_id, code, language, status, worker_id, created_at, started_at, completed_at, stdout, stderr, exit_code, limits, cost, duration_seconds)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`

	var job Job
	err := sqlExec.GetContext(ctx, &job, query,
		j.ID, j.UserID, j.Code, j.Language, j.Status, j.WorkerID, j.CreatedAt, j.StartedAt, j.CompletedAt,
		j.Stdout, j.Stderr, j.ExitCode, j.Limits, j.Cost, j.DurationSeconds)
	require.NoError(t, err)

	return &job
}

// CreateWorkerFixture creates a worker row with usable defaults.
func CreateWorkerFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, w *Worker) *Worker {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = IdleWorkerStatus
	}
	if w.RegisteredAt == nil {
		w.RegisteredAt = utils.Float64Ptr(utils.NowEpoch())
	}
	if w.LastHeartbeat == nil {
		w.LastHeartbeat = utils.Float64Ptr(utils.NowEpoch())
	}

	const query = `
		INSERT INTO workers
			(id, owner_id, ip, caps, status, auth_token, last_heartbeat, registered_at, jobs_completed, credits_earned)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`

	var worker Worker
	err := sqlExec.GetContext(ctx, &worker, query,
		w.ID, w.OwnerID, w.IP, w.Caps, w.Status, w.AuthToken, w.LastHeartbeat, w.RegisteredAt,
		w.JobsCompleted, w.CreditsEarned)
	require.NoError(t, err)

	return &worker
}

// CreateUserCreditsFixture creates a credits account with the given balance.
func CreateUserCreditsFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, userID string, balance float64) *UserCredits {
	const query = `
		INSERT INTO user_credits
			(user_id, balance, last_updated)
		VALUES
			(?, ?, ?)
		RETURNING *
	`

	var credits UserCredits
	err := sqlExec.GetContext(ctx, &credits, query, userID, balance, utils.NowEpoch())
	require.NoError(t, err)

	return &credits
}

// CreateUserAuthFixture creates an (owner, token) auth pair.
func CreateUserAuthFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, userID, authToken string) *UserAuth {
	const query = `
		INSERT INTO user_auth
			(user_id, auth_token, created_at)
		VALUES
			(?, ?, ?)
		RETURNING *
	`

	var auth UserAuth
	err := sqlExec.GetContext(ctx, &auth, query, userID, authToken, utils.NowEpoch())
	require.NoError(t, err)

	return &auth
}

// DeleteAllFixtures wipes every table between test cases that share a
// database.
func DeleteAllFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	for _, table := range []string{"jobs", "workers", "user_credits", "user_auth"} {
		_, err := sqlExec.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
}
