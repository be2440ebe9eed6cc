package arena

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// updateQueue is the implementation of the UpdateQueue interface.
type updateQueue struct {
	mu     *sync.Mutex
	writes []bind_group_provider.BufferWrite
}

// UpdateQueue collects staged buffer writes from arenas and other producers until the owner
// drains them into the renderer. It is safe for concurrent use.
type UpdateQueue interface {
	// Push appends writes to the queue.
	//
	// Parameters:
	//   - writes: the staged writes
	Push(writes ...bind_group_provider.BufferWrite)

	// Drain removes and returns every queued write in push order.
	//
	// Returns:
	//   - []bind_group_provider.BufferWrite: the queued writes, nil if empty
	Drain() []bind_group_provider.BufferWrite

	// Len returns the number of queued writes.
	Len() int
}

var _ UpdateQueue = &updateQueue{}

// NewUpdateQueue creates an empty UpdateQueue.
func NewUpdateQueue() UpdateQueue {
	return &updateQueue{mu: &sync.Mutex{}}
}

func (q *updateQueue) Push(writes ...bind_group_provider.BufferWrite) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.writes = append(q.writes, writes...)
}

func (q *updateQueue) Drain() []bind_group_provider.BufferWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.writes) == 0 {
		return nil
	}
	out := q.writes
	q.writes = nil
	return out
}

func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes)
}
