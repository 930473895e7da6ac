// Package adminws publishes fleet phase-change events to subscribed admin
// dashboard clients over WebSocket — a publish-only fan-out generalized
// from the teacher's fabric.Hub/WebSocketSpoke broadcast pattern. It owns
// no fleet state of its own: its caller (internal/gateway) calls Publish
// when it records a Device or Application phase change.
package adminws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one fleet phase-change observation, published verbatim as JSON
// to every connected admin client.
type Event struct {
	Kind      string    `json:"kind"` // "device" or "application"
	Name      string    `json:"name"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the narrow capability internal/gateway depends on, so a nil
// Hub (or a test double) can stand in without the gateway depending on
// this package's concrete type.
type Publisher interface {
	Publish(Event)
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out Publish calls to every currently-connected admin client.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      *slog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subscribers: make(map[*subscriber]struct{}), logger: logger}
}

// ServeHTTP lets a Hub be mounted directly on an http.ServeMux/router as
// the admin WebSocket endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.HandleWebSocket(w, r) }

// HandleWebSocket upgrades the request and registers the client as a
// subscriber until it disconnects. Admin clients are receive-only: any
// bytes they send are discarded, read only to detect close and service
// pong frames.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("adminws: upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()
	sub.conn.Close()
}

// Publish fans event out to every connected subscriber, dropping it for
// any subscriber whose send buffer is full rather than blocking the
// caller (a slow admin dashboard must never stall fleet reconciliation).
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("adminws: failed to marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			h.logger.Warn("adminws: dropped event for slow subscriber", "kind", event.Kind, "name", event.Name)
		}
	}
}
