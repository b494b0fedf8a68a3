package collab

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/models"
	"github.com/docsy-app/docsy/backend/go-services/pkg/logger"
	"github.com/docsy-app/docsy/backend/go-services/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // deltas and full snapshots share this limit
	sendBufferSize = 64
)

// Client is one live connection. The read pump feeds frames to the gateway
// dispatcher; the write pump drains the send buffer. Room and role are
// owned by the session but may be rewritten by permission changes arriving
// from other connections, hence the lock.
type Client struct {
	hub     *Hub
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	principal *models.User

	mu   sync.RWMutex
	room string
	role access.Role
}

func newClient(hub *Hub, gw *Gateway, conn *websocket.Conn, principal *models.User) *Client {
	return &Client{
		hub:       hub,
		gateway:   gw,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		principal: principal,
		role:      access.RoleNone,
	}
}

func (c *Client) session() (room string, role access.Role) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.role
}

func (c *Client) setSession(room string, role access.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	c.role = role
}

func (c *Client) setRole(role access.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// enqueue hands a frame to the write pump without blocking. Frames to a
// stalled connection are dropped; the next snapshot load resynchronizes it.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logger.Warnf("collab: dropping frame for slow connection (sub=%s)", c.principal.Sub)
	}
}

func (c *Client) sendEvent(event string, data interface{}) {
	frame, err := marshalEnvelope(event, data)
	if err != nil {
		logger.Errorf("collab: marshal %s: %v", event, err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) sendError(kind, message string) {
	c.sendEvent(EventError, ErrorPayload{Kind: kind, Message: message})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
		close(c.send)
		metrics.ActiveConnections.Dec()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("collab: read error: %v", err)
			}
			return
		}
		if closeConn := c.gateway.dispatch(c, raw); closeConn {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
