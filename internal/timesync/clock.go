package timesync

import "time"

// Clock converts wall time into seconds on the session reference clock.
// The zero point is fixed when the clock is created, so readings are
// monotonic for the life of a session.
type Clock struct {
	epoch time.Time
}

func NewClock() *Clock {
	return &Clock{epoch: time.Now()}
}

// Now returns seconds elapsed since the session epoch.
func (c *Clock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// Epoch returns the wall-clock instant the reference clock started.
func (c *Clock) Epoch() time.Time { return c.epoch }
