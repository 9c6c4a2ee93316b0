// Package gpio ingests edge-triggered ground-truth signals from a Linux
// GPIO character device. Timestamps come from the kernel at interrupt
// time, not from event-queue dequeue time, which keeps jitter out of the
// latency measurement.
package gpio

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type Config struct {
	SourceID string        `yaml:"source_id"`
	Chip     string        `yaml:"chip"`
	Line     int           `yaml:"line"`
	Edge     string        `yaml:"edge"` // "rising", "falling", "both"
	Debounce time.Duration `yaml:"debounce"`
}

func (c *Config) ApplyDefaults() {
	if c.Chip == "" {
		c.Chip = "gpiochip0"
	}
	if c.Edge == "" {
		c.Edge = "both"
	}
}

func (c *Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	if c.Line < 0 {
		return fmt.Errorf("line must be >= 0, got %d", c.Line)
	}
	switch c.Edge {
	case "rising", "falling", "both":
	default:
		return fmt.Errorf("edge must be rising, falling or both, got %q", c.Edge)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0, got %s", c.Debounce)
	}
	return nil
}

type Adapter struct {
	cfg Config

	mu      sync.Mutex
	line    *gpiocdev.Line
	out     chan<- *domain.SignalEvent
	stopCh  chan struct{}
	started bool
	seq     uint64
	lastTS  float64
}

func NewAdapter(cfg Config) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

func (a *Adapter) SourceID() string          { return a.cfg.SourceID }
func (a *Adapter) Protocol() domain.Protocol { return domain.ProtocolGPIO }

// RawNow reads CLOCK_MONOTONIC, the clock domain the kernel stamps line
// events with.
func (a *Adapter) RawNow() (float64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, fmt.Errorf("clock_gettime: %w", err)
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9, nil
}

func (a *Adapter) Start(out chan<- *domain.SignalEvent) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("gpio %s: already started", a.cfg.SourceID)
	}
	a.out = out
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithEventHandler(a.handleEvent),
	}
	switch a.cfg.Edge {
	case "rising":
		opts = append(opts, gpiocdev.WithRisingEdge)
	case "falling":
		opts = append(opts, gpiocdev.WithFallingEdge)
	default:
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	if a.cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(a.cfg.Debounce))
	}

	line, err := gpiocdev.RequestLine(a.cfg.Chip, a.cfg.Line, opts...)
	if err != nil {
		return fmt.Errorf("gpio %s: request %s line %d: %w", a.cfg.SourceID, a.cfg.Chip, a.cfg.Line, err)
	}

	a.mu.Lock()
	a.line = line
	a.started = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	close(a.stopCh)
	line := a.line
	a.line = nil
	a.mu.Unlock()

	if line != nil {
		return line.Close()
	}
	return nil
}

// handleEvent runs on the gpiocdev event goroutine. It builds the
// SignalEvent and hands it off; the correlation work happens on the
// consumer side so interrupt latency stays decoupled from it.
func (a *Adapter) handleEvent(evt gpiocdev.LineEvent) {
	ts := evt.Timestamp.Seconds()

	a.mu.Lock()
	if !a.started || ts < a.lastTS {
		a.mu.Unlock()
		return
	}
	a.lastTS = ts
	a.seq++
	seq := a.seq
	out := a.out
	stopCh := a.stopCh
	a.mu.Unlock()

	edge := "rising"
	raw := []byte{1}
	if evt.Type == gpiocdev.LineEventFallingEdge {
		edge = "falling"
		raw = []byte{0}
	}

	ev := &domain.SignalEvent{
		SourceID:  a.cfg.SourceID,
		Timestamp: ts,
		Raw:       raw,
		Protocol:  domain.ProtocolGPIO,
		Metadata: map[string]string{
			"chip": a.cfg.Chip,
			"line": strconv.Itoa(a.cfg.Line),
			"edge": edge,
		},
		Seq: seq,
	}

	select {
	case out <- ev:
	case <-stopCh:
	}
}

var (
	_ ports.SignalAdapter = (*Adapter)(nil)
	_ ports.ClockSource   = (*Adapter)(nil)
)
