package netsig

import (
	"net"
	"testing"
	"time"

	"github.com/veridrive/sigproof/internal/domain"
)

func TestUDPAdapterEmitsEventPerPacket(t *testing.T) {
	a, err := NewAdapter(Config{SourceID: "net-0", Transport: "udp", Listen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	out := make(chan *domain.SignalEvent, 8)
	if err := a.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop()

	conn, err := net.Dial("udp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("trigger-1")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-out:
		if string(ev.Raw) != "trigger-1" {
			t.Fatalf("unexpected payload %q", ev.Raw)
		}
		if ev.Protocol != domain.ProtocolNetwork || ev.SourceID != "net-0" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Seq != 1 {
			t.Fatalf("expected seq 1, got %d", ev.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
	}
}

func TestTCPAdapterHandlesClientsIndependently(t *testing.T) {
	a, err := NewAdapter(Config{SourceID: "net-1", Transport: "tcp", Listen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	out := make(chan *domain.SignalEvent, 8)
	if err := a.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop()

	c1, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial c1: %v", err)
	}
	defer c1.Close()
	c2, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial c2: %v", err)
	}
	defer c2.Close()

	if _, err := c1.Write([]byte("a\n")); err != nil {
		t.Fatalf("write c1: %v", err)
	}
	if _, err := c2.Write([]byte("b\n")); err != nil {
		t.Fatalf("write c2: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-out:
			got[string(ev.Raw)] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	if !got["a"] || !got["b"] {
		t.Fatalf("missing events: %v", got)
	}
}

func TestStopReleasesResources(t *testing.T) {
	a, err := NewAdapter(Config{SourceID: "net-2", Transport: "udp", Listen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	out := make(chan *domain.SignalEvent, 1)
	if err := a.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := a.Addr().String()
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The port must be free again; double Stop is a no-op.
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		t.Fatalf("port not released: %v", err)
	}
	pc.Close()
	if err := a.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewAdapter(Config{Transport: "udp", Listen: ":0"}); err == nil {
		t.Fatalf("missing source_id must be rejected")
	}
	if _, err := NewAdapter(Config{SourceID: "x", Transport: "sctp", Listen: ":0"}); err == nil {
		t.Fatalf("unknown transport must be rejected")
	}
	if _, err := NewAdapter(Config{SourceID: "x", Listen: ":0"}); err != nil {
		t.Fatalf("transport should default to udp: %v", err)
	}
}
