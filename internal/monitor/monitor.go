// Package monitor streams audit events to WebSocket observers so a transfer
// can be watched live while the server runs.
package monitor

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rdtcopy/internal/audit"
	"github.com/1ureka/rdtcopy/internal/util"
)

const (
	outboxSize   = 256 // per-observer queued events before drops
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub accepts WebSocket observers on /events and fans out every event it is
// handed. It implements audit.Observer.
type Hub struct {
	listener net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// client owns one WebSocket connection. Only its writer goroutine writes.
type client struct {
	conn   *websocket.Conn
	outbox chan audit.Event
	done   chan struct{}
	once   sync.Once
}

// NewHub creates a hub with no observers.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Start begins listening on addr (host:port, port 0 picks one). Returns the
// bound address.
func (h *Hub) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start monitor: %w", err)
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr(), nil
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn:   conn,
		outbox: make(chan audit.Event, outboxSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	util.LogDebug("monitor observer connected from %s", r.RemoteAddr)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop is the single writer for c's connection and closes it on exit.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	defer h.drop(c)
	for {
		select {
		case ev := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
			return
		}
	}
}

// readLoop discards inbound messages and notices when the observer leaves.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.done)
	})
}

// Observe queues ev for every observer. A slow observer loses events rather
// than stalling the dispatcher.
func (h *Hub) Observe(ev audit.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.outbox <- ev:
		default:
		}
	}
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops accepting observers and disconnects the current ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if h.listener != nil {
		h.listener.Close()
	}
	for _, c := range clients {
		h.drop(c)
	}
}
