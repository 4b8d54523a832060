// Package scheduler drives the coordinator's periodic maintenance jobs. Each
// job ticks on its own interval and is executed by a small shared runner
// pool, so one slow job cannot stall the rest.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/scheduler/jobs"
)

// schedulerRunnerCount is the size of the pool that drains the job queue.
const schedulerRunnerCount = 5

// Scheduler holds the registered jobs and fans their executions out to the
// runner pool.
type Scheduler struct {
	jobs               map[string]jobs.Job
	cancel             context.CancelFunc
	crashTrackerClient crashtracker.CrashTrackerClient
	jobQueue           chan jobs.Job
	// enqueuedJobs keeps a job from queuing behind itself when a run
	// outlasts the job's own interval.
	enqueuedJobs sync.Map
}

// SchedulerJobRegisterOption registers a job on the scheduler.
type SchedulerJobRegisterOption func(*Scheduler)

// WithStuckJobsWatchdogJobOption registers the watchdog that requeues or
// fails grid jobs whose worker went silent.
func WithStuckJobsWatchdogJobOption(opts jobs.StuckJobsWatchdogJobOptions) SchedulerJobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewStuckJobsWatchdogJob(opts))
	}
}

// WithQueueStatsJobOption registers the sampler that refreshes the queue and
// worker gauges.
func WithQueueStatsJobOption(queue *dispatch.Queue, reg *registry.Registry) SchedulerJobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewQueueStatsJob(queue, reg))
	}
}

// StartScheduler registers the given jobs and runs them until the process
// receives SIGINT, SIGTERM or SIGQUIT. It blocks the calling goroutine.
func StartScheduler(crashTrackerClient crashtracker.CrashTrackerClient, schedulerJobRegisters ...SchedulerJobRegisterOption) {
	defer crashTrackerClient.FlushEvents(2 * time.Second)
	defer crashTrackerClient.Recover()

	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	scheduler := newScheduler(cancel)
	scheduler.crashTrackerClient = crashTrackerClient
	for _, register := range schedulerJobRegisters {
		register(scheduler)
	}

	scheduler.start(ctx)

	<-signalChan
	scheduler.stop()
}

func newScheduler(cancel context.CancelFunc) *Scheduler {
	return &Scheduler{
		jobs:     make(map[string]jobs.Job),
		cancel:   cancel,
		jobQueue: make(chan jobs.Job),
	}
}

func (s *Scheduler) addJob(job jobs.Job) {
	log.Infof("registering job to scheduler [name: %s], [interval: %s]", job.GetName(), job.GetInterval())
	s.jobs[job.GetName()] = job
}

// start launches the runner pool and one ticker goroutine per registered job.
func (s *Scheduler) start(ctx context.Context) {
	if len(s.jobs) == 0 {
		log.Ctx(ctx).Info("scheduler has no jobs registered, shutting down")
		s.stop()
		return
	}
	log.Ctx(ctx).Infof("starting scheduler with %d job runners", schedulerRunnerCount)

	// Each runner gets its own crash tracker clone so reports from
	// concurrent jobs do not share scope.
	for i := 1; i <= schedulerRunnerCount; i++ {
		go runner(ctx, i, s.crashTrackerClient.Clone(), s)
	}

	for _, job := range s.jobs {
		go s.tick(ctx, job)
	}
}

// tick enqueues the job on every interval. Ticks that land while a previous
// run is still queued or executing are skipped.
func (s *Scheduler) tick(ctx context.Context, job jobs.Job) {
	ticker := time.NewTicker(job.GetInterval())
	defer ticker.Stop()

	jobName := job.GetName()
	for {
		select {
		case <-ticker.C:
			if _, alreadyQueued := s.enqueuedJobs.LoadOrStore(jobName, true); alreadyQueued {
				log.Ctx(ctx).Debugf("skipping job %s, previous run still in flight", jobName)
				continue
			}
			log.Ctx(ctx).Debugf("enqueuing job %s", jobName)
			s.jobQueue <- job
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) stop() {
	log.Info("stopping scheduler")
	s.cancel()
}

// runner drains the job queue until the context is canceled. A panicking job
// takes down only its own runner.
func runner(ctx context.Context, runnerID int, crashTrackerClient crashtracker.CrashTrackerClient, s *Scheduler) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Errorf("job runner %d recovered from a panic: %v", runnerID, r)
		}
	}()

	for {
		select {
		case job := <-s.jobQueue:
			executeJob(ctx, job, runnerID, crashTrackerClient)
			s.enqueuedJobs.Delete(job.GetName())
		case <-ctx.Done():
			log.Ctx(ctx).Infof("job runner %d stopping", runnerID)
			return
		}
	}
}

func executeJob(ctx context.Context, job jobs.Job, runnerID int, crashTrackerClient crashtracker.CrashTrackerClient) {
	log.Ctx(ctx).Debugf("running job %s on runner %d", job.GetName(), runnerID)
	if err := job.Execute(ctx); err != nil {
		msg := fmt.Sprintf("error processing job %s on runner %d", job.GetName(), runnerID)
		crashTrackerClient.LogAndReportErrors(ctx, err, msg)
	}
}
