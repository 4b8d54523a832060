package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

const stuckJobsWatchdogJobName = "stuck_jobs_watchdog_job"

// stuckJobsWatchdogJob periodically rescues jobs stuck in running because
// their worker died without a close frame: no live session and a stale (or
// missing) store heartbeat. Rescue marks the worker offline and requeues its
// jobs at the FIFO tail.
type stuckJobsWatchdogJob struct {
	models             *data.Models
	registry           *registry.Registry
	dispatcher         *dispatch.Dispatcher
	jobIntervalSeconds int
	heartbeatTimeout   time.Duration
}

type StuckJobsWatchdogJobOptions struct {
	Models                  *data.Models
	Registry                *registry.Registry
	Dispatcher              *dispatch.Dispatcher
	JobIntervalSeconds      int
	HeartbeatTimeoutSeconds int
}

func NewStuckJobsWatchdogJob(opts StuckJobsWatchdogJobOptions) Job {
	if opts.JobIntervalSeconds < DefaultMinimumJobIntervalSeconds {
		log.Fatalf("job interval is not set for %s. Instantiation failed", stuckJobsWatchdogJobName)
	}
	if opts.HeartbeatTimeoutSeconds <= 0 {
		log.Fatalf("heartbeat timeout is not set for %s. Instantiation failed", stuckJobsWatchdogJobName)
	}

	return &stuckJobsWatchdogJob{
		models:             opts.Models,
		registry:           opts.Registry,
		dispatcher:         opts.Dispatcher,
		jobIntervalSeconds: opts.JobIntervalSeconds,
		heartbeatTimeout:   time.Duration(opts.HeartbeatTimeoutSeconds) * time.Second,
	}
}

func (j stuckJobsWatchdogJob) GetInterval() time.Duration {
	return time.Duration(j.jobIntervalSeconds) * time.Second
}

func (j stuckJobsWatchdogJob) GetName() string {
	return stuckJobsWatchdogJobName
}

func (j stuckJobsWatchdogJob) Execute(ctx context.Context) error {
	runningJobs, err := j.models.Jobs.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("listing running jobs: %w", err)
	}

	// A worker can hold more than one running job after a requeue race, so
	// evaluate each worker once per pass.
	checkedWorkers := make(map[string]bool)
	for _, job := range runningJobs {
		if job.WorkerID == nil || *job.WorkerID == "" {
			continue
		}
		workerID := *job.WorkerID
		if checkedWorkers[workerID] {
			continue
		}
		checkedWorkers[workerID] = true

		// A live session means the worker is connected; its own teardown
		// handles recovery if it drops later.
		if j.registry.Contains(workerID) {
			continue
		}

		stale, checkErr := j.isHeartbeatStale(ctx, workerID)
		if checkErr != nil {
			log.Ctx(ctx).Errorf("watchdog: checking heartbeat of worker %s: %v", workerID, checkErr)
			continue
		}
		if !stale {
			continue
		}

		log.Ctx(ctx).Warnf("⏰ watchdog: worker %s has no session and a stale heartbeat, marking offline", workerID)
		if offlineErr := j.models.Workers.SetOffline(ctx, workerID); offlineErr != nil && !errors.Is(offlineErr, data.ErrRecordNotFound) {
			log.Ctx(ctx).Errorf("watchdog: marking worker %s offline: %v", workerID, offlineErr)
		}
		j.dispatcher.OnWorkerGone(ctx, workerID, monitor.RequeueReasonWatchdog)
	}

	return nil
}

// isHeartbeatStale treats a missing worker row or a missing heartbeat as
// stale: a job cannot stay bound to a worker the store no longer vouches for.
func (j stuckJobsWatchdogJob) isHeartbeatStale(ctx context.Context, workerID string) (bool, error) {
	worker, err := j.models.Workers.Get(ctx, workerID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("getting worker %s: %w", workerID, err)
	}
	if worker.LastHeartbeat == nil {
		return true, nil
	}
	return utils.EpochAge(*worker.LastHeartbeat) > j.heartbeatTimeout, nil
}

var _ Job = (*stuckJobsWatchdogJob)(nil)
