package wsfeed

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	sendBuffer = 16
)

// connection wraps a single feed client. Outgoing events are queued on a
// buffered channel and dropped when the client cannot keep up, so a stalled
// consumer never backs up the pipeline.
type connection struct {
	ws      *websocket.Conn
	send    chan []byte
	logger  *slog.Logger
	onClose func()
}

func newConnection(ws *websocket.Conn, logger *slog.Logger, onClose func()) *connection {
	return &connection{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		logger:  logger,
		onClose: onClose,
	}
}

// run launches the write pump and blocks reading control frames until the
// client disconnects.
func (c *connection) run() {
	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()
	close(done)
	c.cleanup()
}

// readPump discards incoming messages; the feed is one-way. Reading is
// still required to process close and pong control frames.
func (c *connection) readPump() {
	c.ws.SetReadLimit(1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("feed client read closed", "remote", c.ws.RemoteAddr(), "error", err)
			}
			return
		}
	}
}

func (c *connection) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(messageType int, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, payload)
}

// enqueue queues a message for the client, dropping it when the buffer
// is full.
func (c *connection) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("dropping feed message, client buffer full", "remote", c.ws.RemoteAddr())
	}
}

func (c *connection) cleanup() {
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose()
	}
}
