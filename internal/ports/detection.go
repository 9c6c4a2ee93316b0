package ports

import "github.com/veridrive/sigproof/internal/domain"

// DetectionSource yields the externally produced detection stream.
// Next blocks until a detection is available and returns io.EOF once the
// stream is exhausted. Timestamps are non-decreasing.
type DetectionSource interface {
	Next() (*domain.Detection, error)
	Close() error
}
