package connection

import (
	"sync"
	"time"

	"messer/internal/logger"

	"github.com/gorilla/websocket"
)

// WebSocketConnection adapts a gorilla connection to Connection. gorilla
// allows one concurrent reader and one concurrent writer; writeMu
// serializes the writers (frames, pings, close).
type WebSocketConnection struct {
	conn *websocket.Conn
	opts Options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConnection applies the read limit, read deadline and pong
// handler to conn.
func NewWebSocketConnection(conn *websocket.Conn, opts Options) *WebSocketConnection {
	opts = opts.withDefaults()
	c := &WebSocketConnection{conn: conn, opts: opts}

	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	return c
}

func (c *WebSocketConnection) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "remote", c.RemoteAddr(), "error", err)
			}
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage:
			return data, nil
		case websocket.BinaryMessage:
			return nil, ErrBinaryFrame
		}
	}
}

func (c *WebSocketConnection) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WebSocketConnection) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *WebSocketConnection) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WebSocketConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
