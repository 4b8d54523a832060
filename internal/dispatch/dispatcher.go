// Package dispatch pairs queued jobs with idle workers. A single pairing
// loop owns the decision of which worker runs which job; sessions, handlers
// and the watchdog only push job ids and kick the loop.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
	"github.com/gridx-network/gridx-coordinator/pkg/wire"
)

// assignDefaultCPUs and assignDefaultMemory are the execution limits handed
// to workers. Per-job resource classes are not implemented; only the timeout
// varies per job.
const (
	assignDefaultCPUs   = 1
	assignDefaultMemory = "256m"
)

// Dispatcher drains the FIFO and assigns each queued job to an eligible idle
// worker. Its mutex makes pairing passes non-reentrant: a pass observes a
// stable queue head, and concurrent Kick callers coalesce into at most one
// follow-up pass.
type Dispatcher struct {
	queue          *Queue
	registry       *registry.Registry
	models         *data.Models
	engine         *credits.Engine
	monitorService monitor.MonitorServiceInterface

	mu   sync.Mutex
	kick chan struct{}
}

func NewDispatcher(queue *Queue, reg *registry.Registry, models *data.Models, engine *credits.Engine, monitorService monitor.MonitorServiceInterface) *Dispatcher {
	return &Dispatcher{
		queue:          queue,
		registry:       reg,
		models:         models,
		engine:         engine,
		monitorService: monitorService,
		kick:           make(chan struct{}, 1),
	}
}

// Kick requests a pairing pass without blocking. The kick channel holds one
// slot, so any number of kicks during a running pass collapse into exactly
// one more pass.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drains kicks until ctx is done. Start it exactly once.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Ctx(ctx).Info("Starting dispatcher...")
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).Info("Stopping dispatcher...")
			return
		case <-d.kick:
			d.Dispatch(ctx)
		}
	}
}

// Dispatch runs pairing passes until the queue empties or the head job finds
// no eligible worker. Safe to call from any goroutine; callers racing a
// running pass serialize behind it.
//
// Each pass pops the head job id and walks it through: stale ids (row gone
// or no longer queued) are dropped; if no idle worker outside the
// submitter's ownership exists the id goes back to the tail and the pass
// ends; otherwise the worker is claimed, the assignment CASed into the store
// and the job sent over the worker's session. A lost CAS releases the worker
// and moves on. A failed send releases the worker, resets the job to queued
// and ends the pass.
func (d *Dispatcher) Dispatch(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		jobID, ok := d.queue.TryPop()
		if !ok {
			return
		}

		job, err := d.models.Jobs.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, data.ErrRecordNotFound) {
				log.Ctx(ctx).Warnf("dispatch: job %s not found in store, dropping", jobID)
				d.countOutcome(ctx, monitor.DispatchOutcomeStaleJob)
				continue
			}
			log.Ctx(ctx).Errorf("dispatch: reading job %s: %v", jobID, err)
			d.queue.Push(jobID)
			return
		}
		if job.Status != data.QueuedJobStatus {
			log.Ctx(ctx).Debugf("dispatch: job %s is %s, dropping from queue", jobID, job.Status)
			d.countOutcome(ctx, monitor.DispatchOutcomeStaleJob)
			continue
		}

		entry, found := d.registry.PickIdle(job.UserID)
		if !found {
			// Nobody can take this job right now: it goes to the tail and
			// the pass ends. Later jobs get their turn on the next kick.
			log.Ctx(ctx).Infof("dispatch: no idle worker for job %s (excluding owner %q), queue size %d", jobID, job.UserID, d.queue.Len()+1)
			d.queue.Push(jobID)
			d.countOutcome(ctx, monitor.DispatchOutcomeNoWorker)
			return
		}

		d.registry.MarkBusy(entry.WorkerID)

		assigned, err := d.models.Jobs.Assign(ctx, jobID, entry.WorkerID)
		if err != nil {
			log.Ctx(ctx).Errorf("dispatch: assigning job %s to worker %s: %v", jobID, entry.WorkerID, err)
			d.registry.MarkIdle(entry.WorkerID)
			d.queue.Push(jobID)
			d.countOutcome(ctx, monitor.DispatchOutcomeCASLost)
			continue
		}
		if !assigned {
			// The job left queued between the read and the CAS. The store
			// was untouched, so only the registry claim needs releasing.
			d.registry.MarkIdle(entry.WorkerID)
			d.countOutcome(ctx, monitor.DispatchOutcomeCASLost)
			continue
		}

		assignMsg := wire.NewAssignJob(wire.AssignedJob{
			JobID:   job.ID,
			Kind:    string(job.Language),
			Payload: wire.JobPayload{Script: job.Code},
			Limits: wire.JobLimits{
				CPUs:     assignDefaultCPUs,
				Memory:   assignDefaultMemory,
				TimeoutS: job.TimeoutSeconds(d.engine.Config().DefaultJobTimeout),
			},
		})
		if sendErr := entry.Session.Send(assignMsg); sendErr != nil {
			log.Ctx(ctx).Warnf("dispatch: sending job %s to worker %s: %v", jobID, entry.WorkerID, sendErr)
			d.revertAssignment(ctx, jobID, entry.WorkerID)
			d.queue.Push(jobID)
			d.countOutcome(ctx, monitor.DispatchOutcomeSendFailed)
			d.countRequeue(ctx, monitor.RequeueReasonSendFailed)
			return
		}

		log.Ctx(ctx).Infof("📋 dispatch: assigned job %s to worker %s", jobID, entry.WorkerID)
		d.countOutcome(ctx, monitor.DispatchOutcomeAssigned)
	}
}

// revertAssignment undoes a committed assignment whose job never reached the
// worker: the worker goes back to idle in the registry and the store, and
// the job returns to queued with the worker cleared.
func (d *Dispatcher) revertAssignment(ctx context.Context, jobID, workerID string) {
	d.registry.MarkIdle(workerID)
	if err := d.models.Workers.SetStatus(ctx, workerID, data.IdleWorkerStatus); err != nil {
		log.Ctx(ctx).Errorf("dispatch: reverting worker %s to idle: %v", workerID, err)
	}
	if err := d.models.Jobs.Requeue(ctx, jobID); err != nil {
		log.Ctx(ctx).Errorf("dispatch: requeueing job %s after failed send: %v", jobID, err)
	}
}

// OnStarted records the worker's own started timestamp for a job. The
// assignment already stamped started_at, so this only writes when that stamp
// was cleared by a racing requeue.
func (d *Dispatcher) OnStarted(ctx context.Context, jobID string) {
	if err := d.models.Jobs.MarkStarted(ctx, jobID); err != nil {
		log.Ctx(ctx).Errorf("marking job %s started: %v", jobID, err)
	}
}

// OnResult ingests a worker's terminal report for a job: settle the credits,
// finalize the job row, release the worker and kick the loop so the freed
// worker picks up queued work.
//
// workerID is the session's authenticated worker id, never one read from the
// payload. Results for jobs this worker no longer holds (requeued by the
// watchdog and re-assigned elsewhere, or already finalized) are dropped
// without touching credits.
func (d *Dispatcher) OnResult(ctx context.Context, jobID, workerID string, exitCode int64, stdout, stderr string, durationSeconds *float64) {
	log.Ctx(ctx).Infof("job %s finished on worker %s (exit_code=%d)", jobID, workerID, exitCode)

	job, err := d.models.Jobs.Get(ctx, jobID)
	if err != nil {
		log.Ctx(ctx).Errorf("reading job %s for result: %v", jobID, err)
		d.releaseWorker(ctx, workerID)
		return
	}
	if job.Status != data.RunningJobStatus || job.WorkerID == nil || *job.WorkerID != workerID {
		log.Ctx(ctx).Warnf("dropping stale result for job %s from worker %s (status=%s)", jobID, workerID, job.Status)
		d.releaseWorkerAndKick(ctx, workerID)
		return
	}

	ownerID := ""
	if worker, getErr := d.models.Workers.Get(ctx, workerID); getErr != nil {
		log.Ctx(ctx).Errorf("reading worker %s for settlement: %v", workerID, getErr)
	} else {
		ownerID = worker.OwnerID
	}

	stdout = utils.SanitizeString(stdout, wire.MaxOutputSize)
	stderr = utils.SanitizeString(stderr, wire.MaxOutputSize)

	if _, settleErr := d.engine.Settle(ctx, jobID, ownerID, durationSeconds); settleErr != nil {
		log.Ctx(ctx).Errorf("settling job %s: %v", jobID, settleErr)
	}

	completed, err := d.models.Jobs.Complete(ctx, jobID, workerID, stdout, stderr, exitCode)
	if err != nil {
		log.Ctx(ctx).Errorf("completing job %s: %v", jobID, err)
	} else if !completed {
		log.Ctx(ctx).Warnf("result for job %s from worker %s lost the completion race", jobID, workerID)
	} else {
		d.countCompletion(ctx, job, durationSeconds, exitCode)
	}

	d.releaseWorkerAndKick(ctx, workerID)
}

// OnWorkerGone resets every running job bound to a vanished worker back to
// queued and puts the ids back in the FIFO. Callers mark the worker offline
// themselves; this only rescues the jobs. Returns the requeued ids.
func (d *Dispatcher) OnWorkerGone(ctx context.Context, workerID string, reason monitor.RequeueReason) []string {
	jobIDs, err := d.models.Jobs.RequeueAllForWorker(ctx, workerID)
	if err != nil {
		log.Ctx(ctx).Errorf("requeueing jobs of gone worker %s: %v", workerID, err)
		return nil
	}
	for _, jobID := range jobIDs {
		d.queue.Push(jobID)
		d.countRequeue(ctx, reason)
	}
	if len(jobIDs) > 0 {
		log.Ctx(ctx).Warnf("⚠️ requeued %d job(s) from gone worker %s", len(jobIDs), workerID)
	}
	d.Kick()
	return jobIDs
}

// releaseWorker puts the worker back in circulation in the registry. The
// store row is refreshed too so the watchdog sees a live heartbeat.
func (d *Dispatcher) releaseWorker(ctx context.Context, workerID string) {
	d.registry.MarkIdle(workerID)
	if err := d.models.Workers.SetStatus(ctx, workerID, data.IdleWorkerStatus); err != nil {
		log.Ctx(ctx).Errorf("marking worker %s idle: %v", workerID, err)
	}
}

func (d *Dispatcher) releaseWorkerAndKick(ctx context.Context, workerID string) {
	d.releaseWorker(ctx, workerID)
	d.Kick()
}

func (d *Dispatcher) countOutcome(ctx context.Context, outcome monitor.DispatchOutcome) {
	if d.monitorService == nil {
		return
	}
	labels := monitor.DispatchLabels{Outcome: outcome}
	if err := d.monitorService.MonitorCounters(monitor.DispatchAttemptsCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error trying to monitor dispatch counter: %s", err)
	}
}

func (d *Dispatcher) countRequeue(ctx context.Context, reason monitor.RequeueReason) {
	if d.monitorService == nil {
		return
	}
	labels := monitor.RequeueLabels{Reason: reason}
	if err := d.monitorService.MonitorCounters(monitor.JobsRequeuedCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error trying to monitor requeue counter: %s", err)
	}
}

func (d *Dispatcher) countCompletion(ctx context.Context, job *data.Job, durationSeconds *float64, exitCode int64) {
	if d.monitorService == nil {
		return
	}

	status := data.CompletedJobStatus
	if exitCode != 0 {
		status = data.FailedJobStatus
	}
	labels := monitor.JobCompletionLabels{Status: string(status), Language: string(job.Language)}
	if err := d.monitorService.MonitorCounters(monitor.JobsCompletedCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error trying to monitor job completion counter: %s", err)
	}

	if durationSeconds != nil {
		durationLabels := map[string]string{"language": string(job.Language)}
		if err := d.monitorService.MonitorHistogram(*durationSeconds, monitor.JobDurationSecondsTag, durationLabels); err != nil {
			log.Ctx(ctx).Errorf("Error trying to monitor job duration: %s", err)
		}
	}
}
