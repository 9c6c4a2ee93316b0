// Package netsig ingests ground-truth trigger packets over UDP or TCP.
// UDP datagrams are fire-and-forget, one event per packet; TCP clients
// are accepted independently and stream newline-framed triggers.
package netsig

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

const (
	// readTimeout bounds how long a blocked read can outlive Stop.
	readTimeout = 500 * time.Millisecond

	defaultMaxPacket = 2048
)

type Config struct {
	SourceID  string `yaml:"source_id"`
	Transport string `yaml:"transport"` // "udp" or "tcp"
	Listen    string `yaml:"listen"`
	MaxPacket int    `yaml:"max_packet"`
}

func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = "udp"
	}
	if c.MaxPacket <= 0 {
		c.MaxPacket = defaultMaxPacket
	}
}

func (c *Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Transport != "udp" && c.Transport != "tcp" {
		return fmt.Errorf("transport must be udp or tcp, got %q", c.Transport)
	}
	return nil
}

type Adapter struct {
	cfg Config

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	udpConn  *net.UDPConn
	tcpLn    net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	seq      uint64
	lastTS   float64
	disorder uint64
}

func NewAdapter(cfg Config) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

func (a *Adapter) SourceID() string          { return a.cfg.SourceID }
func (a *Adapter) Protocol() domain.Protocol { return domain.ProtocolNetwork }

// RawNow reports the adapter's stamping clock (local wall clock in unix
// seconds) so the synchronizer can calibrate it against the session
// reference clock.
func (a *Adapter) RawNow() (float64, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

func (a *Adapter) Start(out chan<- *domain.SignalEvent) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("netsig %s: already started", a.cfg.SourceID)
	}
	a.stopCh = make(chan struct{})
	a.conns = make(map[net.Conn]struct{})
	a.mu.Unlock()

	switch a.cfg.Transport {
	case "udp":
		addr, err := net.ResolveUDPAddr("udp", a.cfg.Listen)
		if err != nil {
			return fmt.Errorf("netsig %s: resolve %q: %w", a.cfg.SourceID, a.cfg.Listen, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("netsig %s: listen udp: %w", a.cfg.SourceID, err)
		}
		a.mu.Lock()
		a.udpConn = conn
		a.started = true
		a.mu.Unlock()

		a.wg.Add(1)
		go a.readUDP(conn, out)

	case "tcp":
		ln, err := net.Listen("tcp", a.cfg.Listen)
		if err != nil {
			return fmt.Errorf("netsig %s: listen tcp: %w", a.cfg.SourceID, err)
		}
		a.mu.Lock()
		a.tcpLn = ln
		a.started = true
		a.mu.Unlock()

		a.wg.Add(1)
		go a.acceptTCP(ln, out)
	}

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
	conn := a.udpConn
	ln := a.tcpLn
	open := a.conns
	a.udpConn = nil
	a.tcpLn = nil
	a.conns = nil
	a.mu.Unlock()

	var err error
	if conn != nil {
		err = errors.Join(err, conn.Close())
	}
	if ln != nil {
		err = errors.Join(err, ln.Close())
	}
	for c := range open {
		_ = c.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) readUDP(conn *net.UDPConn, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()

	buf := make([]byte, a.cfg.MaxPacket+1)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, remote, err := conn.ReadFromUDP(buf)
		ts := a.rawNow()
		if err != nil {
			if a.stopping() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Transient read errors never terminate the stream.
			log.Printf("netsig %s: udp read: %v", a.cfg.SourceID, err)
			continue
		}
		if n == 0 || n > a.cfg.MaxPacket {
			log.Printf("netsig %s: dropping malformed packet (%d bytes)", a.cfg.SourceID, n)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		a.emit(out, ts, payload, map[string]string{"remote_addr": remote.String()})
	}
}

func (a *Adapter) acceptTCP(ln net.Listener, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if a.stopping() {
				return
			}
			log.Printf("netsig %s: accept: %v", a.cfg.SourceID, err)
			continue
		}
		a.mu.Lock()
		if a.conns == nil {
			a.mu.Unlock()
			_ = conn.Close()
			return
		}
		a.conns[conn] = struct{}{}
		a.mu.Unlock()

		a.wg.Add(1)
		go a.readTCP(conn, out)
	}
}

func (a *Adapter) readTCP(conn net.Conn, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()
	defer func() {
		_ = conn.Close()
		a.mu.Lock()
		if a.conns != nil {
			delete(a.conns, conn)
		}
		a.mu.Unlock()
	}()

	remote := conn.RemoteAddr().String()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, a.cfg.MaxPacket), a.cfg.MaxPacket)

	for sc.Scan() {
		ts := a.rawNow()
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		a.emit(out, ts, payload, map[string]string{"remote_addr": remote})
	}
	if err := sc.Err(); err != nil && !a.stopping() {
		log.Printf("netsig %s: tcp read from %s: %v", a.cfg.SourceID, remote, err)
	}
}

func (a *Adapter) emit(out chan<- *domain.SignalEvent, ts float64, payload []byte, meta map[string]string) {
	a.mu.Lock()
	if ts < a.lastTS {
		// Per-source ordering must be non-decreasing.
		a.disorder++
		a.mu.Unlock()
		return
	}
	a.lastTS = ts
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	ev := &domain.SignalEvent{
		SourceID:  a.cfg.SourceID,
		Timestamp: ts,
		Raw:       payload,
		Protocol:  domain.ProtocolNetwork,
		Metadata:  meta,
		Seq:       seq,
	}

	select {
	case out <- ev:
	case <-a.stopCh:
	}
}

// Addr returns the bound listen address, or nil before Start. Useful
// when the config asked for an ephemeral port.
func (a *Adapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.udpConn != nil {
		return a.udpConn.LocalAddr()
	}
	if a.tcpLn != nil {
		return a.tcpLn.Addr()
	}
	return nil
}

func (a *Adapter) rawNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
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
