package criteria

import (
	"fmt"
	"math"

	"github.com/veridrive/sigproof/internal/domain"
)

// conditionalPassRatio is the fraction of the six criteria that must hold
// for a CONDITIONAL_PASS. The three-tier scheme is an explicit,
// reproducible rule: all six → PASS, at least 70% → CONDITIONAL_PASS,
// otherwise FAIL.
const conditionalPassRatio = 0.7

const criteriaCount = 6

// Counts are the ground-truth validation labels for a session, derived by
// matching detections against annotated ground truth.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Validate rejects malformed criteria eagerly, before any session
// resource is opened.
func Validate(c domain.PassFailCriteria) error {
	checkRatio := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %g", name, v)
		}
		return nil
	}
	if err := checkRatio("min_precision", c.MinPrecision); err != nil {
		return err
	}
	if err := checkRatio("min_recall", c.MinRecall); err != nil {
		return err
	}
	if err := checkRatio("min_f1_score", c.MinF1Score); err != nil {
		return err
	}
	if err := checkRatio("max_false_positive_rate", c.MaxFalsePositiveRate); err != nil {
		return err
	}
	if err := checkRatio("min_detection_confidence", c.MinDetectionConfidence); err != nil {
		return err
	}
	if c.MaxLatencyMs <= 0 {
		return fmt.Errorf("max_latency_ms must be > 0, got %g", c.MaxLatencyMs)
	}
	return nil
}

// ComputeMetrics aggregates a completed result set into session metrics.
func ComputeMetrics(results []*domain.LatencyResult, detections []*domain.Detection, counts Counts) domain.SessionMetrics {
	var m domain.SessionMetrics

	tp := float64(counts.TruePositives)
	fp := float64(counts.FalsePositives)
	fn := float64(counts.FalseNegatives)

	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
		m.FalsePositiveRate = fp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	if len(results) > 0 {
		var sum float64
		for _, r := range results {
			sum += math.Abs(r.LatencyMs)
		}
		m.AvgLatencyMs = sum / float64(len(results))
	}

	if len(detections) > 0 {
		var sum float64
		for _, d := range detections {
			sum += d.Confidence
		}
		m.AvgConfidence = sum / float64(len(detections))
	}

	return m
}

// Classify applies the six thresholds to m and returns the verdict tier
// plus how many criteria held. Tightening any single threshold can only
// reduce the count, never raise it.
func Classify(c domain.PassFailCriteria, m domain.SessionMetrics) (domain.Outcome, int) {
	met := 0
	if m.Precision >= c.MinPrecision {
		met++
	}
	if m.Recall >= c.MinRecall {
		met++
	}
	if m.F1Score >= c.MinF1Score {
		met++
	}
	if m.AvgLatencyMs <= c.MaxLatencyMs {
		met++
	}
	if m.FalsePositiveRate <= c.MaxFalsePositiveRate {
		met++
	}
	if m.AvgConfidence >= c.MinDetectionConfidence {
		met++
	}

	switch {
	case met == criteriaCount:
		return domain.OutcomePass, met
	case float64(met)/criteriaCount >= conditionalPassRatio:
		return domain.OutcomeConditionalPass, met
	default:
		return domain.OutcomeFail, met
	}
}

// Evaluate produces the immutable verdict for a finished session.
func Evaluate(sessionID string, c domain.PassFailCriteria, results []*domain.LatencyResult, detections []*domain.Detection, counts Counts) *domain.TestVerdict {
	metrics := ComputeMetrics(results, detections, counts)
	outcome, met := Classify(c, metrics)
	return &domain.TestVerdict{
		SessionID:   sessionID,
		Criteria:    c,
		Metrics:     metrics,
		CriteriaMet: met,
		Result:      outcome,
	}
}
