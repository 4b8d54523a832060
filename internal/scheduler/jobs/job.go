// Package jobs defines the periodic maintenance tasks the scheduler drives,
// such as the stuck-job watchdog.
package jobs

import (
	"context"
	"time"
)

// DefaultMinimumJobIntervalSeconds is the floor for a job's tick interval.
// Anything faster would just hammer the store.
const DefaultMinimumJobIntervalSeconds = 5

// Job is a single recurring task. Execute runs on every tick; an error is
// logged by the scheduler and the job is retried on the next tick.
type Job interface {
	GetName() string
	GetInterval() time.Duration
	Execute(ctx context.Context) error
}
