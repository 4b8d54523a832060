package dispatch

import "sync"

// Queue is the in-memory FIFO of job ids waiting for a worker. Only ids are
// queued; the job rows stay in the store, which is what lets a restart
// rebuild the queue from the queued rows. Push is unbounded and TryPop never
// blocks.
type Queue struct {
	mu  sync.Mutex
	ids []string
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends jobID at the tail.
func (q *Queue) Push(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ids = append(q.ids, jobID)
}

// TryPop removes and returns the head id, or ok=false when the queue is
// empty.
func (q *Queue) TryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		return "", false
	}
	jobID := q.ids[0]
	q.ids = q.ids[1:]
	return jobID, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ids)
}
