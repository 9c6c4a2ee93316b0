package sigproof

import (
	base "github.com/veridrive/sigproof/pkg/sigproof"
)

// Re-exported errors for convenience.
var ErrUnknownSession = base.ErrUnknownSession

// Type aliases so consumers can import github.com/veridrive/sigproof directly.
type (
	Config           = base.Config
	SourcesConfig    = base.SourcesConfig
	DetectionsConfig = base.DetectionsConfig
	PostgresConfig   = base.PostgresConfig
	MetricsConfig    = base.MetricsConfig
	JournalConfig    = base.JournalConfig

	Runtime = base.Runtime
	Option  = base.Option

	Policy           = base.Policy
	SignalAdapter    = base.SignalAdapter
	DetectionSource  = base.DetectionSource
	ResultStore      = base.ResultStore
	ResultQueue      = base.ResultQueue
	ResultLog        = base.ResultLog
	Observability    = base.Observability
	ProgressSink     = base.ProgressSink
	ProgressSinkFunc = base.ProgressSinkFunc
	Field            = base.Field

	SignalEvent      = base.SignalEvent
	Detection        = base.Detection
	GroundTruth      = base.GroundTruth
	LatencyResult    = base.LatencyResult
	PassFailCriteria = base.PassFailCriteria
	SessionMetrics   = base.SessionMetrics
	TestVerdict      = base.TestVerdict
	ProgressSnapshot = base.ProgressSnapshot
	Outcome          = base.Outcome
	VRUType          = base.VRUType
	Protocol         = base.Protocol
	Fault            = base.Fault
	FaultKind        = base.FaultKind
	SessionState     = base.SessionState
)

const (
	OutcomePass            = base.OutcomePass
	OutcomeConditionalPass = base.OutcomeConditionalPass
	OutcomeFail            = base.OutcomeFail

	PrecisionUnknown = base.PrecisionUnknown
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime construction and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithAdapters(adapters ...SignalAdapter) Option {
	return base.WithAdapters(adapters...)
}

func WithDetectionSource(src DetectionSource) Option {
	return base.WithDetectionSource(src)
}

func WithStore(s ResultStore) Option {
	return base.WithStore(s)
}

func WithResultQueue(q ResultQueue) Option {
	return base.WithResultQueue(q)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithProgressSink(sink ProgressSink) Option {
	return base.WithProgressSink(sink)
}

func WithGroundTruth(gts []*GroundTruth) Option {
	return base.WithGroundTruth(gts)
}

// FaultKindOf extracts the fault classification from an error chain.
func FaultKindOf(err error) FaultKind {
	return base.FaultKindOf(err)
}
