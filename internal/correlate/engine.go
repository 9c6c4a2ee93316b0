package correlate

import (
	"math"

	"github.com/veridrive/sigproof/internal/domain"
)

const defaultBufferCapacity = 10_000

// Options tunes a correlation engine.
type Options struct {
	// ToleranceWindowMs is W; a signal within [t-W, t+W] of a detection
	// timestamp t is a match candidate. Bounds are inclusive.
	ToleranceWindowMs float64
	// BufferCapacity bounds each source's ring buffer.
	BufferCapacity int
	// Exclusive removes a signal from its buffer once it has been
	// consumed as a match. Default is one-to-many reuse.
	Exclusive bool
}

// Engine matches detections against buffered signal events per source.
// It is owned by exactly one consumer goroutine; none of its methods are
// safe for concurrent use. Feeding it the same events in the same order
// always yields the same results, regardless of wall-clock arrival.
type Engine struct {
	opts    Options
	buffers map[string]*ringBuffer
	// matched tracks (detection, source) pairs that already produced a
	// result, so re-delivered detections stay idempotent.
	matched map[string]map[string]struct{}
	// sourceOrder preserves first-seen source ordering so result slices
	// are deterministic across runs.
	sourceOrder []string

	signalsSeen     uint64
	droppedOverflow uint64
	droppedDisorder uint64
}

func NewEngine(opts Options) *Engine {
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = defaultBufferCapacity
	}
	return &Engine{
		opts:    opts,
		buffers: make(map[string]*ringBuffer),
		matched: make(map[string]map[string]struct{}),
	}
}

// AddSignal buffers one synchronized event. Events that would break the
// per-source monotonic ordering are dropped; overflow evicts the oldest
// buffered event. Returns false if the event was dropped.
func (e *Engine) AddSignal(ev *domain.SignalEvent) bool {
	buf, ok := e.buffers[ev.SourceID]
	if !ok {
		buf = newRingBuffer(e.opts.BufferCapacity)
		e.buffers[ev.SourceID] = buf
		e.sourceOrder = append(e.sourceOrder, ev.SourceID)
	}

	if newest := buf.newest(); newest != nil && ev.Timestamp < newest.Timestamp {
		e.droppedDisorder++
		return false
	}

	e.signalsSeen++
	if !buf.push(ev) {
		e.droppedOverflow++
	}
	return true
}

// Correlate searches every source's buffer for the best match to d and
// returns at most one LatencyResult per source. No candidate within the
// window is a valid outcome, not an error.
func (e *Engine) Correlate(d *domain.Detection) []*domain.LatencyResult {
	var out []*domain.LatencyResult
	for _, sourceID := range e.sourceOrder {
		if e.alreadyMatched(d.DetectionID, sourceID) {
			continue
		}
		res := e.correlateSource(d, sourceID)
		if res == nil {
			continue
		}
		e.markMatched(d.DetectionID, sourceID)
		out = append(out, res)
	}
	return out
}

func (e *Engine) correlateSource(d *domain.Detection, sourceID string) *domain.LatencyResult {
	buf := e.buffers[sourceID]
	w := e.opts.ToleranceWindowMs / 1000.0
	lo, hi := buf.window(d.Timestamp-w, d.Timestamp+w)
	if lo >= hi {
		return nil
	}

	// Minimum |delta| wins; exact ties go to the earliest-arriving
	// signal. The buffer is timestamp-ordered with stable insertion, so
	// scanning forward and replacing only on strict improvement gives
	// the earliest arrival for free.
	best := -1
	bestDelta := math.Inf(1)
	for i := lo; i < hi; i++ {
		delta := math.Abs(buf.events[i].Timestamp - d.Timestamp)
		if delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	ev := buf.events[best]

	res := &domain.LatencyResult{
		DetectionID:        d.DetectionID,
		SignalSourceID:     sourceID,
		DetectionTimestamp: d.Timestamp,
		SignalTimestamp:    ev.Timestamp,
		LatencyMs:          (ev.Timestamp - d.Timestamp) * 1000.0,
		PrecisionUs:        domain.PrecisionUnknown,
		WithinTolerance:    true,
	}
	if ev.Calibrated {
		res.PrecisionUs = math.Abs(ev.Timestamp-d.Timestamp) * 1e6
	}

	if e.opts.Exclusive {
		buf.remove(best)
	}
	return res
}

func (e *Engine) alreadyMatched(detectionID, sourceID string) bool {
	set, ok := e.matched[detectionID]
	if !ok {
		return false
	}
	_, ok = set[sourceID]
	return ok
}

func (e *Engine) markMatched(detectionID, sourceID string) {
	set, ok := e.matched[detectionID]
	if !ok {
		set = make(map[string]struct{})
		e.matched[detectionID] = set
	}
	set[sourceID] = struct{}{}
}

// Stats reports engine-level diagnostics.
type Stats struct {
	SignalsSeen     uint64
	DroppedOverflow uint64
	DroppedDisorder uint64
	BufferedEvents  int
}

func (e *Engine) Stats() Stats {
	buffered := 0
	for _, b := range e.buffers {
		buffered += b.len()
	}
	return Stats{
		SignalsSeen:     e.signalsSeen,
		DroppedOverflow: e.droppedOverflow,
		DroppedDisorder: e.droppedDisorder,
		BufferedEvents:  buffered,
	}
}
