// Package live pushes dashboard snapshots to browsers over WebSocket.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/metrics"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the message written to clients.
type Envelope struct {
	Type string        `json:"type"`
	Data core.Snapshot `json:"data"`
	TS   time.Time     `json:"ts"`
}

// Hub tracks connected clients and fans snapshots out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte

	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// SetMetrics sets the metrics registry
func (h *Hub) SetMetrics(m *metrics.Registry) {
	h.metrics = m
}

// ServeHTTP upgrades the connection and registers the client. The latest
// snapshot, if any, is sent right away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	if h.latest != nil {
		client.send <- h.latest
	}
	h.mu.Unlock()

	h.setGauge(count)
	h.logger.Debug("live client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("clients", count),
	)

	go client.writePump()
	go client.readPump()
}

// Broadcast sends a snapshot to every client. Slow clients whose buffer is
// full miss the message; the next snapshot supersedes it.
func (h *Hub) Broadcast(snap core.Snapshot) {
	msg, err := json.Marshal(Envelope{Type: "snapshot", Data: snap, TS: time.Now().UTC()})
	if err != nil {
		h.logger.Error("encoding snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("live client buffer full, dropping snapshot")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.setGauge(count)
	h.logger.Debug("live client disconnected", zap.Int("clients", count))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.setGauge(0)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.SetLiveClients(n)
	}
}
