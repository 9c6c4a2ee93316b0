// Package progress broadcasts session progress snapshots to websocket
// subscribers, typically a test-bench dashboard watching a run.
package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

const writeTimeout = 2 * time.Second

// Hub fans progress snapshots out to every connected client. A slow or
// dead client is dropped rather than allowed to stall the publisher.
type Hub struct {
	obs      ports.Observability
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

func NewHub(obs ports.Observability) *Hub {
	return &Hub{
		obs: obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 2048,
			// Progress is read-only telemetry; any origin may watch.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client for snapshots.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.obs != nil {
			h.obs.LogError("progress_upgrade_failed", err)
		}
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Publish sends one snapshot to every subscriber.
func (h *Hub) Publish(snap domain.ProgressSnapshot) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(snap); err != nil {
			h.drop(c)
		}
	}
}

// ClientCount reports current subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(writeTimeout))
		_ = c.Close()
	}
	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

var _ ports.ProgressSink = (*Hub)(nil)
