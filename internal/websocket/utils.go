package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a gorilla connection with a write mutex so the event pump and
// the action reader can both respond without interleaving frames.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Wrap adopts an upgraded connection.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WriteClose sends a normal close frame.
func (c *Conn) WriteClose(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
}

// ReadMessage reads the next raw message with a deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}
