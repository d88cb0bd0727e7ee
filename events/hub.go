// Package events fans pipeline stage events out to WebSocket subscribers.
// It is purely observational: publishing never blocks the request path, and
// a slow or dead subscriber is dropped, not waited on.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rubberduck/core"
	"rubberduck/protocol"
)

const (
	writeTimeout  = 5 * time.Second
	sendQueueSize = 32
)

// Hub tracks connected event-stream clients.
type Hub struct {
	logger   *core.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *core.Logger) *Hub {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The event stream is an ops tail on a trust boundary that is
			// not authenticated anyway; origin is not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler upgrades the request and subscribes the connection to the stream.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.With(map[string]any{"error": err}).Warn("event stream upgrade failed")
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}

		// The hello frame goes onto the queue inside the same critical
		// section that registers the client, so Close can never shut the
		// queue between registration and the greeting.
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		subscribers := len(h.clients)
		if hello, err := protocol.Encode(protocol.MessageTypeHello, protocol.Hello{
			Service: "rubberduck",
			Version: "1.0.0",
		}); err == nil {
			c.enqueue(hello)
		}
		h.mu.Unlock()

		h.logger.With(map[string]any{"subscribers": subscribers}).Info("event stream client connected")

		go c.writePump()
		c.readPump() // blocks until the client goes away
		h.drop(c)
	}
}

// Publish encodes the event and enqueues it for every subscriber.
func (h *Hub) Publish(ev protocol.StageEvent) {
	data, err := protocol.Encode(protocol.MessageTypeStage, ev)
	if err != nil {
		h.logger.With(map[string]any{"error": err}).Warn("failed to encode stage event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			// Queue full: the subscriber is not keeping up.
			delete(h.clients, c)
			c.close()
		}
	}
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// enqueue offers data to the client's send queue without blocking.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (c *client) writePump() {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; the stream is one-way. Returning means
// the connection is gone.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
