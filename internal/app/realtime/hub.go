// Package realtime pushes mutation events to the owner's open websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/platform/mq"
)

const sendBuffer = 128

type Client struct {
	ID     string
	Conn   *websocket.Conn
	UserID uuid.UUID
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// deliver drops msg when the client is slow or already gone.
func (c *Client) deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// Hub is an mq.Publisher that routes each event to its user's clients.
type Hub struct {
	logger  zerolog.Logger
	clients *xsync.MapOf[string, *Client]
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger, clients: xsync.NewMapOf[*Client]()}
}

func (h *Hub) Register(conn *websocket.Conn, userID uuid.UUID) *Client {
	c := &Client{ID: uuid.NewString(), Conn: conn, UserID: userID, Send: make(chan []byte, sendBuffer)}
	h.clients.Store(c.ID, c)
	return c
}

func (h *Hub) Unregister(c *Client) {
	if _, ok := h.clients.LoadAndDelete(c.ID); ok {
		c.close()
	}
}

func (h *Hub) Clients() int { return h.clients.Size() }

func (h *Hub) Publish(_ context.Context, subject string, data []byte) error {
	var evt mq.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode %s event: %w", subject, err)
	}
	h.clients.Range(func(_ string, c *Client) bool {
		if c.UserID == evt.UserID && !c.deliver(data) {
			h.logger.Debug().Str("client_id", c.ID).Str("subject", subject).Msg("dropped event for slow client")
		}
		return true
	})
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clients.Range(func(id string, _ *Client) bool {
		if c, ok := h.clients.LoadAndDelete(id); ok {
			c.close()
		}
		return true
	})
}
