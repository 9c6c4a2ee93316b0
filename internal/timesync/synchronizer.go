package timesync

import (
	"sync"

	"github.com/veridrive/sigproof/internal/domain"
)

// calibration is one source's learned mapping onto the reference clock:
// reference_ts = raw_ts + offset + drift*(raw_ts - anchor).
type calibration struct {
	offset float64
	drift  float64
	anchor float64
	pings  int
}

// Synchronizer maps each source's raw timestamps onto the session
// reference clock, applying a per-source linear drift correction learned
// from reference pings. The table is the only shared mutable state in the
// pipeline; updates are rare (periodic calibration) relative to reads
// (every event), hence the RWMutex.
type Synchronizer struct {
	mu  sync.RWMutex
	cal map[string]*calibration
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{cal: make(map[string]*calibration)}
}

// Observe ingests a reference ping: at reference time refTS the source's
// own clock read rawTS. The first ping fixes the offset; subsequent pings
// refine a two-point drift estimate against the first.
func (s *Synchronizer) Observe(sourceID string, rawTS, refTS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cal[sourceID]
	if !ok {
		s.cal[sourceID] = &calibration{
			offset: refTS - rawTS,
			anchor: rawTS,
			pings:  1,
		}
		return
	}

	elapsed := rawTS - c.anchor
	if elapsed > 0 {
		c.drift = ((refTS - rawTS) - c.offset) / elapsed
	}
	c.pings++
}

// Sync returns a copy of ev with its timestamp rewritten onto the
// reference clock and Calibrated set accordingly. Without any observed
// ping the event passes through unchanged (zero offset, zero drift) and
// Calibrated stays false so downstream consumers can degrade precision
// reporting instead of fabricating it.
func (s *Synchronizer) Sync(ev *domain.SignalEvent) *domain.SignalEvent {
	s.mu.RLock()
	c, ok := s.cal[ev.SourceID]
	out := *ev
	if ok {
		out.Timestamp = ev.Timestamp + c.offset + c.drift*(ev.Timestamp-c.anchor)
		out.Calibrated = true
	}
	s.mu.RUnlock()
	return &out
}

// Calibrated reports whether any reference ping has been observed for
// sourceID.
func (s *Synchronizer) Calibrated(sourceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cal[sourceID]
	return ok
}
