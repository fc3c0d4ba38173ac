package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mega/chat-service/models"
	"mega/chat-service/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 8192

	// Outbound buffer per connection.
	sendBufferSize = 64
)

// Client is one live websocket connection bound to an authenticated
// user. Room membership lives on the hub; the rooms set here is
// guarded by the hub's mutex.
type Client struct {
	ID     uuid.UUID
	UserID uint
	Send   chan models.ServerEvent

	conn   *websocket.Conn
	hub    *Hub
	logger *utils.Logger
	rooms  map[string]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint, logger *utils.Logger) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Send:   make(chan models.ServerEvent, sendBufferSize),
		conn:   conn,
		hub:    hub,
		logger: logger,
		rooms:  make(map[string]struct{}),
	}
}

// SendEvent queues an event for this connection, dropping it if the
// buffer is full.
func (c *Client) SendEvent(event string, data interface{}) {
	select {
	case c.Send <- models.ServerEvent{Event: event, Data: data}:
	default:
		c.logger.Warn("Dropping event, send buffer full", "client_id", c.ID, "event", event)
	}
}

// SendError reports a handler failure to this connection only.
func (c *Client) SendError(message string) {
	c.SendEvent(models.EventError, models.ErrorPayload{Message: message})
}

// ReadPump reads frames from the connection and hands them to handle.
// It returns when the connection drops; the caller owns unregistering.
func (c *Client) ReadPump(handle func(models.ClientEvent)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Websocket read failed", "client_id", c.ID, "error", err)
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.SendError("Malformed event payload")
			continue
		}
		handle(event)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings. It exits when Send is closed (by the
// hub on unregister) or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
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
