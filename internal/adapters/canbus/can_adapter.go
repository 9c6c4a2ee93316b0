// Package canbus ingests ground-truth frames from a SocketCAN interface.
// Each frame becomes one SignalEvent; the arbitration ID and frame flags
// are preserved in metadata for downstream filtering.
package canbus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"go.einride.tech/can/pkg/socketcan"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type Config struct {
	SourceID  string   `yaml:"source_id"`
	Interface string   `yaml:"interface"`
	FrameIDs  []uint32 `yaml:"frame_ids"`
}

func (c *Config) ApplyDefaults() {
	if c.Interface == "" {
		c.Interface = "can0"
	}
}

func (c *Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	if c.Interface == "" {
		return errors.New("interface is required")
	}
	return nil
}

type Adapter struct {
	cfg    Config
	accept map[uint32]bool

	mu      sync.Mutex
	conn    interface{ Close() error }
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
	accept := make(map[uint32]bool, len(cfg.FrameIDs))
	for _, id := range cfg.FrameIDs {
		accept[id] = true
	}
	return &Adapter{cfg: cfg, accept: accept}, nil
}

func (a *Adapter) SourceID() string          { return a.cfg.SourceID }
func (a *Adapter) Protocol() domain.Protocol { return domain.ProtocolCAN }

func (a *Adapter) RawNow() (float64, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

func (a *Adapter) Start(out chan<- *domain.SignalEvent) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("can %s: already started", a.cfg.SourceID)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := socketcan.DialContext(ctx, "can", a.cfg.Interface)
	if err != nil {
		return fmt.Errorf("can %s: dial %s: %w", a.cfg.SourceID, a.cfg.Interface, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.stopCh = make(chan struct{})
	a.started = true
	a.mu.Unlock()

	recv := socketcan.NewReceiver(conn)
	a.wg.Add(1)
	go a.receive(recv, out)
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
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	var err error
	if conn != nil {
		// Closing the socket unblocks the receive loop.
		err = conn.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) receive(recv *socketcan.Receiver, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()

	for recv.Receive() {
		frame := recv.Frame()
		ts, _ := a.RawNow()

		if len(a.accept) > 0 && !a.accept[frame.ID] {
			continue
		}

		payload := make([]byte, frame.Length)
		copy(payload, frame.Data[:frame.Length])

		meta := map[string]string{
			"interface": a.cfg.Interface,
			"frame_id":  fmt.Sprintf("0x%X", frame.ID),
		}
		if frame.IsExtended {
			meta["extended"] = "true"
		}
		if frame.IsRemote {
			meta["remote"] = "true"
		}
		meta["dlc"] = strconv.Itoa(int(frame.Length))

		a.emit(out, ts, payload, meta)
	}

	if err := recv.Err(); err != nil && !a.stopping() {
		log.Printf("can %s: receive: %v", a.cfg.SourceID, err)
	}
}

func (a *Adapter) emit(out chan<- *domain.SignalEvent, ts float64, payload []byte, meta map[string]string) {
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
		Protocol:  domain.ProtocolCAN,
		Metadata:  meta,
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
