package jobs

import (
	"context"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
)

const (
	queueStatsJobName     = "queue_stats_job"
	queueStatsJobInterval = 10 * time.Second
)

// queueStatsJob logs the coordinator's load picture on a fixed cadence. The
// prometheus gauges for the same numbers are scrape-time callbacks, so this
// is the log channel for anyone running without a scraper.
type queueStatsJob struct {
	queue    *dispatch.Queue
	registry *registry.Registry
}

func NewQueueStatsJob(queue *dispatch.Queue, reg *registry.Registry) Job {
	return &queueStatsJob{queue: queue, registry: reg}
}

func (j queueStatsJob) Execute(ctx context.Context) error {
	idle, busy := 0, 0
	for _, entry := range j.registry.Snapshot() {
		if entry.Status == data.BusyWorkerStatus {
			busy++
		} else {
			idle++
		}
	}
	log.Ctx(ctx).Debugf("queue depth %d, connected workers %d (idle %d, busy %d)", j.queue.Len(), idle+busy, idle, busy)
	return nil
}

func (j queueStatsJob) GetInterval() time.Duration {
	return queueStatsJobInterval
}

func (j queueStatsJob) GetName() string {
	return queueStatsJobName
}

var _ Job = (*queueStatsJob)(nil)
