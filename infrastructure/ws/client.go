package ws

import (
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// client is one live websocket connection. Writes go through a
// buffered send channel drained by a single writer goroutine, so
// broadcasts never block on a slow consumer; a full buffer drops the
// frame instead.
type client struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn, sendBuffer int, log *slog.Logger) *client {
	return &client{
		id:   id,
		conn: conn,
		log:  log,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *client) push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Debug("Send buffer full, dropping frame", "connection", c.id)
	}
}

func (c *client) writeLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Debug("Write failed", "connection", c.id, "error", err)
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
