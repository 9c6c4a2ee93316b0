package ports

import "github.com/veridrive/sigproof/internal/domain"

// ProgressSink receives periodic progress snapshots from a running
// session. Implementations must not block the orchestrator.
type ProgressSink interface {
	Publish(snap domain.ProgressSnapshot)
}

// ProgressSinkFunc adapts a plain function into a ProgressSink.
type ProgressSinkFunc func(domain.ProgressSnapshot)

func (f ProgressSinkFunc) Publish(snap domain.ProgressSnapshot) { f(snap) }
