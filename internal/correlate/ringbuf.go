package correlate

import (
	"sort"

	"github.com/veridrive/sigproof/internal/domain"
)

// ringBuffer holds one source's recently synchronized events, ordered by
// timestamp. Capacity is fixed; overflow evicts the oldest entry.
type ringBuffer struct {
	events  []*domain.SignalEvent
	cap     int
	evicted uint64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &ringBuffer{
		events: make([]*domain.SignalEvent, 0, capacity),
		cap:    capacity,
	}
}

// push appends ev, which must not precede the newest buffered timestamp.
// Returns false when the buffer was full and the oldest event was evicted
// to make room.
func (b *ringBuffer) push(ev *domain.SignalEvent) bool {
	ok := true
	if len(b.events) >= b.cap {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
		b.evicted++
		ok = false
	}
	b.events = append(b.events, ev)
	return ok
}

// window returns the indices [lo, hi) of events with timestamp inside
// [from, to], both bounds inclusive.
func (b *ringBuffer) window(from, to float64) (int, int) {
	lo := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp >= from
	})
	hi := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp > to
	})
	return lo, hi
}

// remove drops the event at index i, preserving order.
func (b *ringBuffer) remove(i int) {
	b.events = append(b.events[:i], b.events[i+1:]...)
}

func (b *ringBuffer) newest() *domain.SignalEvent {
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

func (b *ringBuffer) len() int { return len(b.events) }
