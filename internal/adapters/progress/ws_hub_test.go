package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veridrive/sigproof/internal/domain"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients, have %d", n, h.ClientCount())
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	c1 := dialHub(t, srv)
	defer c1.Close()
	c2 := dialHub(t, srv)
	defer c2.Close()
	waitForClients(t, h, 2)

	want := domain.ProgressSnapshot{
		SessionID:       "sess-1",
		State:           "RUNNING",
		EventsProcessed: 42,
		MatchesFound:    7,
	}
	h.Publish(want)

	for _, c := range []*websocket.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got domain.ProgressSnapshot
		if err := c.ReadJSON(&got); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if got != want {
			t.Fatalf("snapshot mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dialHub(t, srv)
	waitForClients(t, h, 1)
	c.Close()
	waitForClients(t, h, 0)

	// Publishing with no subscribers must not block or panic.
	h.Publish(domain.ProgressSnapshot{SessionID: "sess-1"})
}

func TestHubCloseRefusesNewClients(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dialHub(t, srv)
	defer c.Close()
	waitForClients(t, h, 1)

	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	late := dialHub(t, srv)
	defer late.Close()

	// The late client is closed immediately; its first read fails.
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected read error on client connected after close")
	}
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close, got %d", h.ClientCount())
	}
}
