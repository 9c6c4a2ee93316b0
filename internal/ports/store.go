package ports

import "github.com/veridrive/sigproof/internal/domain"

// ResultStore persists the per-session verdict and latency results.
type ResultStore interface {
	WriteResults(sessionID string, results []*domain.LatencyResult) error
	SaveVerdict(v *domain.TestVerdict) error
	Name() string
}
