package domain

// PrecisionUnknown is the sentinel reported when a source was never
// calibrated and sub-millisecond precision cannot be attested.
const PrecisionUnknown = -1.0

// LatencyResult records one matched (detection, signal) pair. At most one
// exists per detection per signal source.
type LatencyResult struct {
	DetectionID        string  `json:"detection_id"`
	SignalSourceID     string  `json:"signal_source_id"`
	DetectionTimestamp float64 `json:"detection_ts"`
	SignalTimestamp    float64 `json:"signal_ts"`
	LatencyMs          float64 `json:"latency_ms"`
	PrecisionUs        float64 `json:"precision_us"`
	WithinTolerance    bool    `json:"within_tolerance"`
}

// PassFailCriteria holds the six session-level thresholds. Supplied at
// session start, never mutated during a run.
type PassFailCriteria struct {
	MinPrecision           float64 `json:"min_precision" yaml:"min_precision"`
	MinRecall              float64 `json:"min_recall" yaml:"min_recall"`
	MinF1Score             float64 `json:"min_f1_score" yaml:"min_f1_score"`
	MaxLatencyMs           float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MaxFalsePositiveRate   float64 `json:"max_false_positive_rate" yaml:"max_false_positive_rate"`
	MinDetectionConfidence float64 `json:"min_detection_confidence" yaml:"min_detection_confidence"`
}

// SessionMetrics aggregates a completed result set.
type SessionMetrics struct {
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1Score           float64 `json:"f1_score"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	AvgConfidence     float64 `json:"avg_confidence"`
}

// Outcome is the three-tier verdict classification. The tiers are a
// deliberate design choice: VRU validation runs are rarely unambiguous,
// so a run that satisfies at least 70% of the criteria is conditionally
// acceptable rather than failed outright.
type Outcome string

const (
	OutcomePass            Outcome = "PASS"
	OutcomeConditionalPass Outcome = "CONDITIONAL_PASS"
	OutcomeFail            Outcome = "FAIL"
)

// TestVerdict is computed exactly once per session, after all adapters
// have stopped and in-flight correlations have resolved. Immutable.
type TestVerdict struct {
	SessionID   string           `json:"session_id"`
	Criteria    PassFailCriteria `json:"criteria"`
	Metrics     SessionMetrics   `json:"metrics"`
	CriteriaMet int              `json:"criteria_met"`
	Result      Outcome          `json:"result"`
}

// ProgressSnapshot is the externally visible view of a running session.
type ProgressSnapshot struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	EventsProcessed uint64 `json:"events_processed"`
	MatchesFound    uint64 `json:"matches_found"`
	EventsDropped   uint64 `json:"events_dropped"`
	ElapsedMs       int64  `json:"elapsed_ms"`
	Incomplete      bool   `json:"incomplete"`
}
