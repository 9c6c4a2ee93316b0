// Package serialbus ingests frame-oriented ground-truth signals from a
// serial line. Each delimiter-terminated frame becomes one SignalEvent.
package serialbus

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// readTimeout bounds how long a blocked read can outlive Stop.
const readTimeout = 500 * time.Millisecond

type Config struct {
	SourceID  string `yaml:"source_id"`
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	Delimiter byte   `yaml:"delimiter"`
	MaxFrame  int    `yaml:"max_frame"`
}

func (c *Config) ApplyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = 115200
	}
	if c.Delimiter == 0 {
		c.Delimiter = '\n'
	}
	if c.MaxFrame <= 0 {
		c.MaxFrame = 1024
	}
}

func (c *Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	return nil
}

type Adapter struct {
	cfg Config

	mu      sync.Mutex
	port    serial.Port
	stopCh  chan struct{}
	wg      sync.WaitGroup
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
func (a *Adapter) Protocol() domain.Protocol { return domain.ProtocolSerial }

func (a *Adapter) RawNow() (float64, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

func (a *Adapter) Start(out chan<- *domain.SignalEvent) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("serial %s: already started", a.cfg.SourceID)
	}
	a.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: a.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(a.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serial %s: open %s: %w", a.cfg.SourceID, a.cfg.Port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("serial %s: set read timeout: %w", a.cfg.SourceID, err)
	}

	a.mu.Lock()
	a.port = port
	a.stopCh = make(chan struct{})
	a.started = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.read(port, out)
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
	port := a.port
	a.port = nil
	a.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) read(port serial.Port, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()

	r := bufio.NewReader(port)
	frame := make([]byte, 0, a.cfg.MaxFrame)

	for {
		b, err := r.ReadByte()
		if err != nil {
			if a.stopping() {
				return
			}
			// Read timeouts and transient line noise keep the stream
			// alive; the session must never terminate silently.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if b != a.cfg.Delimiter {
			if len(frame) < a.cfg.MaxFrame {
				frame = append(frame, b)
			} else {
				log.Printf("serial %s: dropping oversized frame", a.cfg.SourceID)
				frame = frame[:0]
			}
			continue
		}
		if len(frame) == 0 {
			continue
		}
		ts, _ := a.RawNow()
		payload := make([]byte, len(frame))
		copy(payload, frame)
		frame = frame[:0]
		a.emit(out, ts, payload)
	}
}

func (a *Adapter) emit(out chan<- *domain.SignalEvent, ts float64, payload []byte) {
	a.mu.Lock()
	if ts < a.lastTS {
		a.mu.Unlock()
		return
	}
	a.lastTS = ts
	a.seq++
	seq := a.seq
	stopCh := a.stopCh
	a.mu.Unlock()

	ev := &domain.SignalEvent{
		SourceID:  a.cfg.SourceID,
		Timestamp: ts,
		Raw:       payload,
		Protocol:  domain.ProtocolSerial,
		Metadata:  map[string]string{"port": a.cfg.Port},
		Seq:       seq,
	}

	select {
	case out <- ev:
	case <-stopCh:
	}
}

func (a *Adapter) stopping() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

var (
	_ ports.SignalAdapter = (*Adapter)(nil)
	_ ports.ClockSource   = (*Adapter)(nil)
)
