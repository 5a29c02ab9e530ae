// client.go
// The read goroutine hands every inbound frame to the manager.
// The write goroutine drains the client's send queue back to the browser,
// so a slow browser never stalls the manager loop.

package main

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"support-relay/internal/config"
)

func newClient(socket *websocket.Conn, cfg config.ClientConfig, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		socket: socket,
		cfg:    cfg,
		log:    log.With("client", id),
		send:   make(chan []byte, cfg.SendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues data without blocking. A full queue means the browser has
// stopped reading; the queue is closed, which ends the connection.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.log.Warn("client too slow, disconnecting", "queued", len(c.send))
		c.closeLocked()
		return ErrSendQueueFull
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) read(m *Manager) {
	defer func() {
		m.Unregister(c)
		c.Close()
	}()

	c.socket.SetReadLimit(c.cfg.ReadLimit)
	c.socket.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})
	// The write pump answers a peer's close frame once the queue is drained.
	c.socket.SetCloseHandler(func(int, string) error { return nil })

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}
		m.Deliver(c, string(message))
	}
}

func (c *Client) write() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
