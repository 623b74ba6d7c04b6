// Package server carries the transport layer: one WebSocket listener for
// users, one for workers, and the thin HTTP surface (login redirect,
// liveness). It parses nothing itself; frames go to the Router.
package server

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"musink/contract"
)

// connection is what the router needs from a live socket: frame
// delivery plus the identity bound to it. Tests substitute fakes.
type connection interface {
	contract.FrameSink
	bindSession(code string)
	session() string
	bindService(name string)
	service() string
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
)

// wsClient is one live connection on either endpoint. Outbound frames go
// through a buffered channel drained by the write pump, so a Send never
// blocks a broadcast; a peer that cannot drain its buffer is closed.
type wsClient struct {
	log  *slog.Logger
	conn *websocket.Conn
	send chan []byte

	// mu serializes Send with close: the registries may still hold this
	// sink after it closed, so a late Send must observe the closed state
	// instead of hitting a closed channel.
	// It also guards the identity bound to the connection by its first
	// accepted frame: the session code on the user endpoint, the service
	// name on the worker endpoint. Needed again at close time for cleanup.
	mu          sync.Mutex
	closed      bool
	sessionCode string
	serviceName string
}

func newWSClient(log *slog.Logger, conn *websocket.Conn, sendBuffer int) *wsClient {
	return &wsClient{
		log:  log,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Send queues one frame for delivery. A full buffer means the peer has
// stopped draining; the connection is closed rather than allowed to
// stall the caller. Frames sent after the close are reported as errors,
// never panics, so one stalled peer cannot break a broadcast to others.
func (c *wsClient) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection already closed")
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return fmt.Errorf("send buffer full, dropping connection")
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsClient) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) bindSession(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCode = code
}

func (c *wsClient) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionCode
}

func (c *wsClient) bindService(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceName = name
}

func (c *wsClient) service() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serviceName
}

// readPump delivers inbound frames to onFrame one at a time, preserving
// per-connection ordering. It runs in the connection's handler goroutine
// and calls onClose exactly once on the way out, before returning, so
// cleanup happens before the server forgets the connection.
func (c *wsClient) readPump(onFrame func(connection, []byte), onClose func(connection)) {
	defer func() {
		onClose(c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("connection dropped", "remote", c.conn.RemoteAddr().String(), "error", err)
			}
			return
		}
		onFrame(c, frame)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. It exits when the channel is closed or a
// write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
