package services

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsClient wraps one watcher connection with a buffered outbound queue
// so a slow consumer never blocks the pusher.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *zap.SugaredLogger
}

func newWSClient(conn *websocket.Conn, log *zap.SugaredLogger) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the frame when the client's queue is full.
func (c *wsClient) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.log.Debugw("dropping frame to slow watcher")
	}
}

// readPump discards inbound frames; it exists to observe the close
// handshake.
func (c *wsClient) readPump() {
	defer c.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugw("watcher read error", "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("watcher write error", "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
