package criteria

import (
	"math"

	"github.com/veridrive/sigproof/internal/domain"
)

// DeriveCounts matches detections against annotated ground truth by
// timestamp proximity to produce TP/FP/FN labels. Each annotation can
// confirm at most one detection. windowMs is the maximum allowed distance
// between a detection and the annotation it confirms.
func DeriveCounts(detections []*domain.Detection, truths []*domain.GroundTruth, windowMs float64) Counts {
	w := windowMs / 1000.0
	used := make([]bool, len(truths))

	var counts Counts
	for _, d := range detections {
		matched := false
		bestDelta := math.Inf(1)
		best := -1
		for i, gt := range truths {
			if used[i] || gt.VRUType != d.VRUType {
				continue
			}
			delta := math.Abs(gt.Timestamp - d.Timestamp)
			if delta <= w && delta < bestDelta {
				best = i
				bestDelta = delta
			}
		}
		if best >= 0 {
			used[best] = true
			matched = true
		}
		if matched {
			counts.TruePositives++
		} else {
			counts.FalsePositives++
		}
	}

	for i := range truths {
		if !used[i] {
			counts.FalseNegatives++
		}
	}
	return counts
}
