package queue

import (
	"sync"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// MemQueue is a bounded in-memory result queue that preserves FIFO
// ordering between the correlation consumer and the store flusher.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.QueuedResult
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		data: make([]ports.QueuedResult, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(id ports.LogEntryID, r *domain.LatencyResult) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, ports.QueuedResult{ID: id, Result: r})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedResult, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.ResultQueue = (*MemQueue)(nil)
