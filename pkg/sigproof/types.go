package sigproof

import (
	"github.com/veridrive/sigproof/internal/app/config"
	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
	"github.com/veridrive/sigproof/internal/session"
)

// Type aliases so embedding applications only import this package.
type (
	Config           = config.Config
	SourcesConfig    = config.SourcesConfig
	DetectionsConfig = config.DetectionsConfig
	PostgresConfig   = config.PostgresConfig
	MetricsConfig    = config.MetricsConfig
	JournalConfig    = config.JournalConfig

	Policy           = ports.Policy
	SignalAdapter    = ports.SignalAdapter
	DetectionSource  = ports.DetectionSource
	ResultStore      = ports.ResultStore
	ResultQueue      = ports.ResultQueue
	ResultLog        = ports.ResultLog
	Observability    = ports.Observability
	ProgressSink     = ports.ProgressSink
	ProgressSinkFunc = ports.ProgressSinkFunc
	Field            = ports.Field

	SignalEvent      = domain.SignalEvent
	Detection        = domain.Detection
	GroundTruth      = domain.GroundTruth
	LatencyResult    = domain.LatencyResult
	PassFailCriteria = domain.PassFailCriteria
	SessionMetrics   = domain.SessionMetrics
	TestVerdict      = domain.TestVerdict
	ProgressSnapshot = domain.ProgressSnapshot
	Outcome          = domain.Outcome
	VRUType          = domain.VRUType
	Protocol         = domain.Protocol
	Fault            = domain.Fault
	FaultKind        = domain.FaultKind

	SessionState = session.State
)

const (
	OutcomePass            = domain.OutcomePass
	OutcomeConditionalPass = domain.OutcomeConditionalPass
	OutcomeFail            = domain.OutcomeFail

	PrecisionUnknown = domain.PrecisionUnknown
)

const (
	StateCreated   = session.StateCreated
	StateRunning   = session.StateRunning
	StateStopping  = session.StateStopping
	StateStopped   = session.StateStopped
	StateCancelled = session.StateCancelled
)

// ErrUnknownSession is returned for IDs the runtime never issued.
var ErrUnknownSession = session.ErrUnknownSession

// FaultKindOf extracts the fault classification from an error chain.
func FaultKindOf(err error) domain.FaultKind { return domain.FaultKindOf(err) }

// LoadConfig reads, defaults, and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
