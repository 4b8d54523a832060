package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/db/dbtest"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

func Test_JobStatus_Validate(t *testing.T) {
	for _, status := range JobStatuses() {
		assert.NoError(t, status.Validate())
	}
	assert.EqualError(t, JobStatus("pending").Validate(), "invalid job status: pending")
	assert.EqualError(t, JobStatus("").Validate(), "invalid job status: ")
}

func Test_JobStatus_IsTerminal(t *testing.T) {
	assert.False(t, QueuedJobStatus.IsTerminal())
	assert.False(t, RunningJobStatus.IsTerminal())
	assert.True(t, CompletedJobStatus.IsTerminal())
	assert.True(t, FailedJobStatus.IsTerminal())
	assert.True(t, CancelledJobStatus.IsTerminal())
}

func Test_Language_Validate(t *testing.T) {
	for _, language := range Languages() {
		assert.NoError(t, language.Validate())
	}
	assert.EqualError(t, Language("rust").Validate(), "invalid language: rust")
}

func Test_Job_TimeoutSeconds(t *testing.T) {
	testCases := []struct {
		name   string
		limits JSONMap
		want   int
	}{
		{name: "nil limits falls back to default", limits: nil, want: 60},
		{name: "limits without timeout falls back to default", limits: JSONMap{"cpus": 2.0}, want: 60},
		{name: "integral timeout is honored", limits: JSONMap{"timeout_s": float64(30)}, want: 30},
		{name: "zero timeout falls back to default", limits: JSONMap{"timeout_s": float64(0)}, want: 60},
		{name: "negative timeout falls back to default", limits: JSONMap{"timeout_s": float64(-5)}, want: 60},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := Job{Limits: tc.limits}
			assert.Equal(t, tc.want, job.TimeoutSeconds(60))
		})
	}
}

func Test_JobModel_Insert(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	t.Run("returns error when id or user is missing", func(t *testing.T) {
		_, insertErr := jobModel.Insert(ctx, Job{UserID: "alice"})
		assert.ErrorIs(t, insertErr, ErrMissingInput)

		_, insertErr = jobModel.Insert(ctx, Job{ID: "job-1"})
		assert.ErrorIs(t, insertErr, ErrMissingInput)
	})

	t.Run("🎉 successfully inserts a job with defaults", func(t *testing.T) {
		inserted, insertErr := jobModel.Insert(ctx, Job{
			ID:     "job-1",
			UserID: "alice",
			Code:   `print("hi")`,
			Cost:   1.5,
		})
		require.NoError(t, insertErr)

		assert.Equal(t, "job-1", inserted.ID)
		assert.Equal(t, "alice", inserted.UserID)
		assert.Equal(t, LanguagePython, inserted.Language)
		assert.Equal(t, QueuedJobStatus, inserted.Status)
		assert.Nil(t, inserted.WorkerID)
		assert.Nil(t, inserted.StartedAt)
		assert.NotZero(t, inserted.CreatedAt)
		assert.Equal(t, 1.5, inserted.Cost)
	})

	t.Run("🎉 successfully inserts a job with limits", func(t *testing.T) {
		inserted, insertErr := jobModel.Insert(ctx, Job{
			ID:       "job-2",
			UserID:   "alice",
			Code:     "sleep 1",
			Language: LanguageBash,
			Limits:   JSONMap{"timeout_s": float64(120), "cpus": float64(2)},
		})
		require.NoError(t, insertErr)

		assert.Equal(t, LanguageBash, inserted.Language)
		assert.Equal(t, 120, inserted.TimeoutSeconds(60))
	})

	t.Run("returns error on duplicate id", func(t *testing.T) {
		_, insertErr := jobModel.Insert(ctx, Job{ID: "job-1", UserID: "alice"})
		require.Error(t, insertErr)
		assert.ErrorContains(t, insertErr, "UNIQUE constraint failed: jobs.id")
	})
}

func Test_JobModel_Get(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	t.Run("returns ErrRecordNotFound for an unknown id", func(t *testing.T) {
		_, getErr := jobModel.Get(ctx, "unknown")
		assert.ErrorIs(t, getErr, ErrRecordNotFound)
	})

	t.Run("🎉 successfully gets a job", func(t *testing.T) {
		created := CreateJobFixture(t, ctx, dbConnectionPool, &Job{UserID: "alice", Limits: JSONMap{"timeout_s": float64(10)}})

		got, getErr := jobModel.Get(ctx, created.ID)
		require.NoError(t, getErr)
		assert.Equal(t, created, got)
	})
}

func Test_JobModel_ListBySubmitter(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	oldest := CreateJobFixture(t, ctx, dbConnectionPool, &Job{UserID: "alice", CreatedAt: 1000})
	middle := CreateJobFixture(t, ctx, dbConnectionPool, &Job{UserID: "alice", CreatedAt: 2000})
	newest := CreateJobFixture(t, ctx, dbConnectionPool, &Job{UserID: "alice", CreatedAt: 3000})
	CreateJobFixture(t, ctx, dbConnectionPool, &Job{UserID: "bob", CreatedAt: 4000})

	t.Run("returns the submitter's jobs newest first", func(t *testing.T) {
		jobs, listErr := jobModel.ListBySubmitter(ctx, "alice", 50)
		require.NoError(t, listErr)
		require.Len(t, jobs, 3)
		assert.Equal(t, newest.ID, jobs[0].ID)
		assert.Equal(t, middle.ID, jobs[1].ID)
		assert.Equal(t, oldest.ID, jobs[2].ID)
	})

	t.Run("clamps the limit into range", func(t *testing.T) {
		jobs, listErr := jobModel.ListBySubmitter(ctx, "alice", 0)
		require.NoError(t, listErr)
		require.Len(t, jobs, 1)
		assert.Equal(t, newest.ID, jobs[0].ID)

		jobs, listErr = jobModel.ListBySubmitter(ctx, "alice", 1000)
		require.NoError(t, listErr)
		assert.Len(t, jobs, 3)
	})

	t.Run("returns an empty slice for an unknown submitter", func(t *testing.T) {
		jobs, listErr := jobModel.ListBySubmitter(ctx, "nobody", 50)
		require.NoError(t, listErr)
		assert.Empty(t, jobs)
	})
}

func Test_JobModel_UpdateStatus(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}
	job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{})

	t.Run("returns error for an invalid status", func(t *testing.T) {
		updateErr := jobModel.UpdateStatus(ctx, dbConnectionPool, job.ID, JobStatus("bogus"))
		assert.EqualError(t, updateErr, "invalid job status: bogus")
	})

	t.Run("returns ErrRecordNotFound for an unknown id", func(t *testing.T) {
		updateErr := jobModel.UpdateStatus(ctx, dbConnectionPool, "unknown", CancelledJobStatus)
		assert.ErrorIs(t, updateErr, ErrRecordNotFound)
	})

	t.Run("🎉 successfully updates the status", func(t *testing.T) {
		require.NoError(t, jobModel.UpdateStatus(ctx, dbConnectionPool, job.ID, CancelledJobStatus))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, CancelledJobStatus, got.Status)
	})
}

func Test_JobModel_MarkStarted(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	t.Run("stamps started_at when unset", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus})
		require.Nil(t, job.StartedAt)

		require.NoError(t, jobModel.MarkStarted(ctx, job.ID))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		require.NotNil(t, got.StartedAt)
	})

	t.Run("keeps an existing started_at", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, StartedAt: utils.Float64Ptr(1234.5)})

		require.NoError(t, jobModel.MarkStarted(ctx, job.ID))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		require.NotNil(t, got.StartedAt)
		assert.Equal(t, 1234.5, *got.StartedAt)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		assert.NoError(t, jobModel.MarkStarted(ctx, "unknown"))
	})
}

func Test_JobModel_Assign(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}
	workerModel := WorkerModel{dbConnectionPool: dbConnectionPool}

	worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: IdleWorkerStatus})
	job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{})

	t.Run("🎉 successfully assigns a queued job", func(t *testing.T) {
		assigned, assignErr := jobModel.Assign(ctx, job.ID, worker.ID)
		require.NoError(t, assignErr)
		assert.True(t, assigned)

		gotJob, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, RunningJobStatus, gotJob.Status)
		require.NotNil(t, gotJob.WorkerID)
		assert.Equal(t, worker.ID, *gotJob.WorkerID)
		require.NotNil(t, gotJob.StartedAt)

		gotWorker, getErr := workerModel.Get(ctx, worker.ID)
		require.NoError(t, getErr)
		assert.Equal(t, BusyWorkerStatus, gotWorker.Status)
	})

	t.Run("loses the compare-and-swap when the job is no longer queued", func(t *testing.T) {
		assigned, assignErr := jobModel.Assign(ctx, job.ID, worker.ID)
		require.NoError(t, assignErr)
		assert.False(t, assigned)
	})

	t.Run("returns false for an unknown job", func(t *testing.T) {
		assigned, assignErr := jobModel.Assign(ctx, "unknown", worker.ID)
		require.NoError(t, assignErr)
		assert.False(t, assigned)
	})
}

func Test_JobModel_Complete(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}
	workerModel := WorkerModel{dbConnectionPool: dbConnectionPool}

	t.Run("🎉 exit code zero completes the job and credits the worker counter", func(t *testing.T) {
		worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: BusyWorkerStatus})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &worker.ID})

		completed, completeErr := jobModel.Complete(ctx, job.ID, worker.ID, "out", "err", 0)
		require.NoError(t, completeErr)
		assert.True(t, completed)

		gotJob, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, CompletedJobStatus, gotJob.Status)
		assert.Equal(t, "out", gotJob.Stdout)
		assert.Equal(t, "err", gotJob.Stderr)
		require.NotNil(t, gotJob.ExitCode)
		assert.Equal(t, int64(0), *gotJob.ExitCode)
		require.NotNil(t, gotJob.CompletedAt)

		gotWorker, getErr := workerModel.Get(ctx, worker.ID)
		require.NoError(t, getErr)
		assert.Equal(t, IdleWorkerStatus, gotWorker.Status)
		assert.Equal(t, int64(1), gotWorker.JobsCompleted)
	})

	t.Run("non-zero exit code fails the job and keeps the counter", func(t *testing.T) {
		worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: BusyWorkerStatus})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &worker.ID})

		completed, completeErr := jobModel.Complete(ctx, job.ID, worker.ID, "", "boom", 1)
		require.NoError(t, completeErr)
		assert.True(t, completed)

		gotJob, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, FailedJobStatus, gotJob.Status)

		gotWorker, getErr := workerModel.Get(ctx, worker.ID)
		require.NoError(t, getErr)
		assert.Equal(t, IdleWorkerStatus, gotWorker.Status)
		assert.Equal(t, int64(0), gotWorker.JobsCompleted)
	})

	t.Run("redelivered result is a no-op", func(t *testing.T) {
		worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: BusyWorkerStatus})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &worker.ID})

		completed, completeErr := jobModel.Complete(ctx, job.ID, worker.ID, "first", "", 0)
		require.NoError(t, completeErr)
		assert.True(t, completed)

		completed, completeErr = jobModel.Complete(ctx, job.ID, worker.ID, "second", "", 1)
		require.NoError(t, completeErr)
		assert.False(t, completed)

		gotJob, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, CompletedJobStatus, gotJob.Status)
		assert.Equal(t, "first", gotJob.Stdout)

		gotWorker, getErr := workerModel.Get(ctx, worker.ID)
		require.NoError(t, getErr)
		assert.Equal(t, int64(1), gotWorker.JobsCompleted)
	})

	t.Run("result from a worker the job is not assigned to is dropped", func(t *testing.T) {
		assigned := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: BusyWorkerStatus})
		stale := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{Status: BusyWorkerStatus})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &assigned.ID})

		completed, completeErr := jobModel.Complete(ctx, job.ID, stale.ID, "hijack", "", 0)
		require.NoError(t, completeErr)
		assert.False(t, completed)

		gotJob, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, RunningJobStatus, gotJob.Status)
		assert.Empty(t, gotJob.Stdout)
	})

	t.Run("queued job cannot be completed", func(t *testing.T) {
		worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{})

		completed, completeErr := jobModel.Complete(ctx, job.ID, worker.ID, "", "", 0)
		require.NoError(t, completeErr)
		assert.False(t, completed)
	})
}

func Test_JobModel_RecordSettlement(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	t.Run("returns ErrRecordNotFound for an unknown id", func(t *testing.T) {
		settleErr := jobModel.RecordSettlement(ctx, "unknown", utils.Float64Ptr(0.2), 0.05)
		assert.ErrorIs(t, settleErr, ErrRecordNotFound)
	})

	t.Run("🎉 successfully overwrites the reserved cost", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: CompletedJobStatus, Cost: 6.0})

		require.NoError(t, jobModel.RecordSettlement(ctx, job.ID, utils.Float64Ptr(0.2), 0.05))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		require.NotNil(t, got.DurationSeconds)
		assert.Equal(t, 0.2, *got.DurationSeconds)
		assert.Equal(t, 0.05, got.Cost)
	})

	t.Run("keeps duration NULL when the worker reported none", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: FailedJobStatus, Cost: 6.0})

		require.NoError(t, jobModel.RecordSettlement(ctx, job.ID, nil, 0.05))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Nil(t, got.DurationSeconds)
		assert.Equal(t, 0.05, got.Cost)
	})
}

func Test_JobModel_Requeue(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	t.Run("returns ErrRecordNotFound for an unknown id", func(t *testing.T) {
		assert.ErrorIs(t, jobModel.Requeue(ctx, "unknown"), ErrRecordNotFound)
	})

	t.Run("🎉 successfully resets a running job", func(t *testing.T) {
		worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{})
		job := CreateJobFixture(t, ctx, dbConnectionPool, &Job{
			Status:    RunningJobStatus,
			WorkerID:  &worker.ID,
			StartedAt: utils.Float64Ptr(utils.NowEpoch()),
		})

		require.NoError(t, jobModel.Requeue(ctx, job.ID))

		got, getErr := jobModel.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, QueuedJobStatus, got.Status)
		assert.Nil(t, got.WorkerID)
		assert.Nil(t, got.StartedAt)
	})
}

func Test_JobModel_ListRunning(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	running := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus})
	CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: QueuedJobStatus})
	CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: CompletedJobStatus})

	jobs, err := jobModel.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, running.ID, jobs[0].ID)
}

func Test_JobModel_RequeueAllForWorker(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	jobModel := JobModel{dbConnectionPool: dbConnectionPool}

	worker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{})
	otherWorker := CreateWorkerFixture(t, ctx, dbConnectionPool, &Worker{})

	first := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &worker.ID})
	second := CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &worker.ID})
	CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: RunningJobStatus, WorkerID: &otherWorker.ID})
	CreateJobFixture(t, ctx, dbConnectionPool, &Job{Status: CompletedJobStatus, WorkerID: &worker.ID})

	jobIDs, err := jobModel.RequeueAllForWorker(ctx, worker.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, jobIDs)

	for _, id := range jobIDs {
		got, getErr := jobModel.Get(ctx, id)
		require.NoError(t, getErr)
		assert.Equal(t, QueuedJobStatus, got.Status)
		assert.Nil(t, got.WorkerID)
		assert.Nil(t, got.StartedAt)
	}

	otherJobs, err := jobModel.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, otherJobs, 1)
	require.NotNil(t, otherJobs[0].WorkerID)
	assert.Equal(t, otherWorker.ID, *otherJobs[0].WorkerID)
}
