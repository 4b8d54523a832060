package jobs

import (
	"context"
	"sync/atomic"
	"time"
)

// MockJob counts its own executions so scheduler tests can assert on ticks.
type MockJob struct {
	Name     string
	Interval time.Duration

	executions atomic.Int64
}

var _ Job = (*MockJob)(nil)

func (m *MockJob) GetName() string { return m.Name }

func (m *MockJob) GetInterval() time.Duration { return m.Interval }

func (m *MockJob) Execute(context.Context) error {
	m.executions.Add(1)
	return nil
}

// GetExecutions reports how many times Execute has run.
func (m *MockJob) GetExecutions() int {
	return int(m.executions.Load())
}
