package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

const writeTimeout = 10 * time.Second

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active websocket rooms keyed by topic.
type Hub struct {
	rooms map[string]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]*client)}
}

// AddClient registers a websocket connection in a topic room.
func (h *Hub) AddClient(topic string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*websocket.Conn]*client)
	}
	h.rooms[topic][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection from a topic room.
func (h *Hub) RemoveClient(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[topic]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, topic)
		}
	}
}

// Clients returns the number of connections in a topic room.
func (h *Hub) Clients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Broadcast sends payload to every client in topic and returns how many
// received it. Clients that fail to receive are dropped.
func (h *Hub) Broadcast(topic string, payload []byte) int {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[topic]))
	for _, c := range h.rooms[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := h.send(topic, c, payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Send writes payload to one registered connection.
func (h *Hub) Send(topic string, conn *websocket.Conn, payload []byte) error {
	h.mu.RLock()
	c, ok := h.rooms[topic][conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	return h.send(topic, c, payload)
}

func (h *Hub) send(topic string, c *client, payload []byte) error {
	err := c.write(payload)
	if err != nil {
		jww.WARN.Printf("websocket write error topic=%s conn=%s: %v", topic, c.info.ConnID, err)
		c.conn.Close()
		h.RemoveClient(topic, c.conn)
		publishWSEvent(context.Background(), c.info, "ws_error", err.Error())
	}
	return err
}
