// Package registry tracks live worker sessions in memory: worker-id to
// session handle, negotiated capabilities and current status. It is the
// dispatcher's source of truth for who can take a job right now; the store
// rows are the durable mirror.
package registry

import (
	"sync"
	"time"

	"github.com/gridx-network/gridx-coordinator/internal/data"
)

// Session is the send side of a live worker connection. Implementations must
// be safe for concurrent use; the registry never calls Send itself.
type Session interface {
	Send(v any) error
}

// Entry is the registry's view of one live worker. Lookup methods return
// copies, so an Entry in a caller's hands is a snapshot, not live state.
type Entry struct {
	WorkerID string
	Session  Session
	Caps     data.JSONMap
	Status   data.WorkerStatus
	LastSeen time.Time
	OwnerID  string
}

// canExecute reports whether the entry advertises job execution. Defaults to
// true when caps carry no can_execute key.
func (e *Entry) canExecute() bool {
	return e.Caps.Bool("can_execute", true)
}

// Registry is a mutex-guarded map of live sessions plus their insertion
// order. All critical sections are short and perform no I/O.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Register inserts or replaces the entry for workerID with status idle and a
// fresh last-seen. A re-registered id keeps its original place in the
// insertion order, so reconnecting does not change dispatch fairness.
func (r *Registry) Register(workerID string, session Session, caps data.JSONMap, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[workerID]; !exists {
		r.order = append(r.order, workerID)
	}
	r.entries[workerID] = &Entry{
		WorkerID: workerID,
		Session:  session,
		Caps:     caps,
		Status:   data.IdleWorkerStatus,
		LastSeen: time.Now(),
		OwnerID:  ownerID,
	}
}

// Unregister removes the entry. The caller owns the follow-up work of
// marking the store row offline and requeueing the worker's jobs.
func (r *Registry) Unregister(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[workerID]; !exists {
		return
	}
	delete(r.entries, workerID)
	for i, id := range r.order {
		if id == workerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) MarkBusy(workerID string) {
	r.setStatus(workerID, data.BusyWorkerStatus)
}

func (r *Registry) MarkIdle(workerID string) {
	r.setStatus(workerID, data.IdleWorkerStatus)
}

func (r *Registry) setStatus(workerID string, status data.WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[workerID]; exists {
		entry.Status = status
		entry.LastSeen = time.Now()
	}
}

// Touch refreshes the entry's last-seen.
func (r *Registry) Touch(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[workerID]; exists {
		entry.LastSeen = time.Now()
	}
}

// Contains reports whether a live session exists for workerID.
func (r *Registry) Contains(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entries[workerID]
	return exists
}

// Get returns a copy of the entry for workerID.
func (r *Registry) Get(workerID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[workerID]
	if !exists {
		return Entry{}, false
	}
	return *entry, true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Snapshot returns copies of all entries in insertion order.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		if entry, exists := r.entries[id]; exists {
			snapshot = append(snapshot, *entry)
		}
	}
	return snapshot
}

// PickIdle returns a copy of the first insertion-ordered idle entry that
// advertises execution, skipping entries owned by excludeOwner. The skip is
// the self-dealing guard: a submitter cannot earn back their own reservation
// through a worker they own.
func (r *Registry) PickIdle(excludeOwner string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		entry, exists := r.entries[id]
		if !exists || entry.Status != data.IdleWorkerStatus || !entry.canExecute() {
			continue
		}
		if excludeOwner != "" && entry.OwnerID == excludeOwner {
			continue
		}
		return *entry, true
	}
	return Entry{}, false
}
