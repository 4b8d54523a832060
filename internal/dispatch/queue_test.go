package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Queue_FIFO(t *testing.T) {
	q := NewQueue()
	assert.Equal(t, 0, q.Len())

	_, ok := q.TryPop()
	assert.False(t, ok)

	q.Push("job-1")
	q.Push("job-2")
	q.Push("job-3")
	assert.Equal(t, 3, q.Len())

	jobID, ok := q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "job-1", jobID)

	jobID, ok = q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "job-2", jobID)

	// a popped-and-pushed id goes to the tail, not the head
	q.Push("job-2")
	jobID, ok = q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "job-3", jobID)

	jobID, ok = q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "job-2", jobID)

	_, ok = q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}
