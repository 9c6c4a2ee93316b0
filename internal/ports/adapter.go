package ports

import "github.com/veridrive/sigproof/internal/domain"

// SignalAdapter is implemented once per protocol. Start pushes events into
// out and returns once the adapter is streaming; Stop releases every OS
// resource the adapter holds, including after a partially failed Start.
type SignalAdapter interface {
	SourceID() string
	Protocol() domain.Protocol
	Start(out chan<- *domain.SignalEvent) error
	Stop() error
}

// ClockSource is implemented by adapters whose event clock the
// synchronizer can sample directly. RawNow returns the current reading
// of the clock domain the adapter stamps its events with; pairing it
// with the reference clock yields a calibration ping.
type ClockSource interface {
	RawNow() (float64, error)
}
