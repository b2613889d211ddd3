package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

const wsWriteTimeout = 5 * time.Second

// Hub broadcasts every published screen to connected websocket clients, so
// companion apps can mirror the e-ink panel live. It satisfies the
// scheduler's Publisher interface.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Companion apps connect from other hosts on the LAN; auth is
			// handled by the surrounding middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Name identifies the hub in publisher logs.
func (h *Hub) Name() string { return "websocket" }

// Publish sends the content to every connected client. Clients that fail a
// write are dropped.
func (h *Hub) Publish(_ context.Context, content model.DisplayContent) error {
	for _, conn := range h.snapshot() {
		h.send(conn, content)
	}
	return nil
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		_ = conn.Close()
	}
}

// upgrade negotiates the websocket handshake. The conn sees no broadcasts
// until register is called, so the caller can write a greeting first without
// racing Publish; gorilla permits only one concurrent writer per conn.
func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		_ = conn.Close()
		return nil, errors.New("hub is closed")
	}
	return conn, nil
}

// register adds the conn to the broadcast set once any greeting write is
// done. The conn is closed if the hub shut down in the meantime.
func (h *Hub) register(conn *websocket.Conn) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteTimeout))
		_ = conn.Close()
		return errors.New("hub is closed")
	}
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	appLog.Debug("websocket client connected", "clients", count)
	return nil
}

// readLoop drains the connection until the client goes away. The feed is
// one way; inbound messages are discarded.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) send(conn *websocket.Conn, content model.DisplayContent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(content); err != nil {
		appLog.Debug("websocket write failed, dropping client", "err", err)
		h.drop(conn)
		return err
	}
	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, known := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if known {
		_ = conn.Close()
		appLog.Debug("websocket client disconnected", "clients", h.Clients())
	}
}
