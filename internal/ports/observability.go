package ports

import "github.com/veridrive/sigproof/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordDrop accounts for an event discarded before correlation
	// (out-of-order sample, malformed payload, buffer overflow).
	RecordDrop(sourceID string, ev *domain.SignalEvent, reason string)
}

type Field struct {
	Key   string
	Value any
}
