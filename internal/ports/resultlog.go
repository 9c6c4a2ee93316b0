package ports

import "github.com/veridrive/sigproof/internal/domain"

// LogEntryID is the position of a record in the result journal.
type LogEntryID uint64

// ResultLog journals latency results as they are produced so partial
// results survive a crash and remain retrievable after adapter faults.
type ResultLog interface {
	Append(r *domain.LatencyResult) (LogEntryID, error)
	Replay(from LogEntryID, fn func(id LogEntryID, r *domain.LatencyResult) error) error
	MarkFlushed(upto LogEntryID) error
	Stats() ResultLogStats
	Close() error
}

// ResultLogStats describes the journal watermarks.
type ResultLogStats struct {
	OldestUnflushed LogEntryID
	LatestAppended  LogEntryID
	SizeBytes       int64
}
