package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindflow-hq/mindflow/internal/logging"
)

// WebSocketMessage is the frame pushed to connected clients
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHub fans messages out to every connected client
type WebSocketHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan WebSocketMessage

	mu sync.RWMutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local single-user daemon
	},
}

// NewWebSocketHub creates a hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan WebSocketMessage, 64),
	}
}

// Run processes hub registrations and broadcasts. Call in a goroutine.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.Debug("ws: client connected (%d total)", h.clientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logging.Debug("ws: client disconnected (%d total)", h.clientCount())

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client, skip this frame rather than block
					// every other consumer.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues a message for all connected clients
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Debug("ws: broadcast buffer full, dropping %s", msg.Type)
	}
}

func (h *WebSocketHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request and runs the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("ws: upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan WebSocketMessage, 32),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump(s.wsHub)
}

// writePump drains the client's send queue onto the wire.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames. The feed is one-way; reading is
// still required to process control frames and notice disconnects.
func (c *wsClient) readPump(hub *WebSocketHub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
