package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vigilant-eye/facewatch/internal/observability"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	method   string // optional detection_method filter
	onlyHits bool   // skip events without a known face
}

type message struct {
	payload []byte
	method  string
	known   int
}

// Hub maintains active WebSocket clients and broadcasts detection events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx is cancelled. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "method", client.method, "only_hits", client.onlyHits)

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if client.method != "" && client.method != msg.method {
					continue
				}
				if client.onlyHits && msg.known == 0 {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					h.drop(client)
				}
				h.mu.Unlock()
			}
		}
	}
}

// drop removes client; h.mu must be held.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent sends a detection event to all matching clients.
func (h *Hub) BroadcastEvent(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{payload: data, method: event.Data.Method, known: event.Data.KnownFaces}:
	case <-h.done:
	}
}

// HandleWS upgrades the request. Query filters: method=<detection method>,
// matches_only=true.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 64),
		method:   c.Query("method"),
		onlyHits: c.Query("matches_only") == "true",
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	// Incoming messages are ignored; reading detects disconnection.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
