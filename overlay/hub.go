package overlay

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientSendBuffer = 8

// Hub fans overlay updates out to connected WebSocket clients. A client
// whose send buffer is full when a broadcast arrives is dropped rather
// than buffered without bound.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[string]*hubClient
}

type hubClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, clients: map[string]*hubClient{}}
}

// Add registers an upgraded connection and starts its pumps. The returned
// id identifies the client until it disconnects.
func (h *Hub) Add(conn *websocket.Conn) string {
	c := &hubClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		quit: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	go c.writePump(h)
	go c.readPump(h)
	h.log.Info("overlay client connected", zap.String("client", c.id))
	return c.id
}

// Remove drops a client and closes its connection. Safe to call twice.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
	h.log.Info("overlay client disconnected", zap.String("client", id))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the JSON-encoded payload to every client, dropping any
// whose buffer is already full.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("broadcast encode failed", zap.Error(err))
		return
	}
	var stale []string
	h.mu.RLock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()
	for _, id := range stale {
		h.log.Warn("dropping slow overlay client", zap.String("client", id))
		h.Remove(id)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[string]*hubClient{}
	h.mu.Unlock()
	for _, c := range clients {
		c.closeOnce.Do(func() {
			close(c.quit)
			_ = c.conn.Close()
		})
	}
}

func (c *hubClient) writePump(h *Hub) {
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.Remove(c.id)
				return
			}
		}
	}
}

// readPump drains inbound messages so close frames are processed; the hub
// has no client-to-server protocol.
func (c *hubClient) readPump(h *Hub) {
	defer h.Remove(c.id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
