package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn is the transport surface the registry and dispatcher rely on.
// *websocket.Conn satisfies it; tests substitute fakes.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnInfo describes one live connection for logging and event publishing.
type ConnInfo struct {
	ConnID      string
	UserID      uuid.UUID
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is a single live connection bound to an authenticated user. The
// owning session reads from the transport; the dispatcher only writes, so
// writes are serialized through the client's lock.
type Client struct {
	info ConnInfo

	mu   sync.Mutex
	conn conn
}

// NewClient wraps a transport connection.
func NewClient(c conn, info ConnInfo) *Client {
	return &Client{conn: c, info: info}
}

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

// Write sends a raw text frame.
func (c *Client) Write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// WriteJSON marshals and sends an event.
func (c *Client) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(payload)
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
