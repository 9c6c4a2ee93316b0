package ports

import "github.com/veridrive/sigproof/internal/domain"

// QueuedResult pairs a journaled latency result with its journal entry ID.
type QueuedResult struct {
	ID     LogEntryID
	Result *domain.LatencyResult
}

// ResultQueue is a bounded FIFO buffering results between the correlation
// consumer and the store flusher.
type ResultQueue interface {
	Enqueue(id LogEntryID, r *domain.LatencyResult) bool
	DequeueBatch(max int) []QueuedResult
	Len() int
}
