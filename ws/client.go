package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/services"
	"messaging_backend/pkg/apperrors"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// Client actions understood over the socket.
const (
	ActionMarkRead = "mark_read"
	ActionTyping   = "typing"
	ActionPing     = "ping"
)

type IncomingMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type markReadPayload struct {
	MessageID string `json:"message_id"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
}

// Actions are the services a client may call from the socket.
type Actions struct {
	DB       *gorm.DB
	Messages services.MessageService
}

type Client struct {
	UserID string

	conn    *websocket.Conn
	hub     *Hub
	actions *Actions
	ctx     context.Context

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID string, actions *Actions) *Client {
	return &Client{
		UserID:  userID,
		conn:    conn,
		hub:     hub,
		actions: actions,
		ctx:     logger.WithUserID(ctx, userID),
		send:    make(chan []byte, sendBuffer),
	}
}

// enqueue never blocks. It reports false when the client is closed or its
// buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.CtxWarn(c.ctx, "websocket read error", "error", err.Error())
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError("Malformed message")
			continue
		}
		c.handle(msg)
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
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

func (c *Client) handle(msg IncomingMessage) {
	switch msg.Action {
	case ActionPing:
		c.reply(services.RealtimeEvent{Type: "pong"})

	case ActionMarkRead:
		var payload markReadPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.MessageID == "" {
			c.replyError("message_id is required")
			return
		}
		if _, err := c.actions.Messages.MarkAsRead(c.actions.DB, c.UserID, payload.MessageID); err != nil {
			c.replyServiceError(err)
		}

	case ActionTyping:
		var payload typingPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ConversationID == "" {
			c.replyError("conversation_id is required")
			return
		}
		if err := c.actions.Messages.Typing(c.actions.DB, c.UserID, payload.ConversationID); err != nil {
			c.replyServiceError(err)
		}

	default:
		c.replyError("Unknown action: " + msg.Action)
	}
}

func (c *Client) reply(event services.RealtimeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) replyError(message string) {
	c.reply(services.RealtimeEvent{Type: "error", Data: map[string]string{"message": message}})
}

func (c *Client) replyServiceError(err error) {
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.HTTPCode < 500 {
		c.reply(services.RealtimeEvent{Type: "error", Data: appErr})
		return
	}
	logger.CtxWithError(c.ctx, "websocket action failed", err)
	c.replyError("Internal server error")
}
