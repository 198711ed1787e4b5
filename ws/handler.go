package ws

import (
	"context"
	"net/http"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/services"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	actions  *Actions
	users    services.UserService
}

// NewHandler builds the /ws endpoint. allowedOrigins empty means any origin.
func NewHandler(hub *Hub, db *gorm.DB, messages services.MessageService, users services.UserService, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		actions: &Actions{DB: db, Messages: messages},
		users:   users,
	}
}

// ServeWS upgrades an authenticated request. The auth middleware must run first.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := c.GetString(string(contextkeys.UserIDKey))
	if userID == "" {
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "websocket upgrade failed", err)
		return
	}

	// The connection outlives the request context.
	client := newClient(context.WithoutCancel(c.Request.Context()), h.hub, conn, userID, h.actions)
	if !h.hub.join(client) {
		conn.Close()
		return
	}

	if h.users != nil {
		if err := h.users.TouchLastSeen(client.ctx, h.actions.DB, userID); err != nil {
			logger.CtxWithError(client.ctx, "failed to update presence", err)
		}
	}
	logger.CtxInfo(client.ctx, "websocket connected")

	go client.writePump()
	go client.readPump()
}
