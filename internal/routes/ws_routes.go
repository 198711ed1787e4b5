package routes

import (
	"messaging_backend/ws"

	"github.com/gin-gonic/gin"
)

func SetupWebSocketRoutes(r *gin.Engine, wsHandler *ws.Handler, authMiddleware gin.HandlerFunc) {
	// Browsers pass the token as ?token= on the upgrade request.
	r.GET("/ws", authMiddleware, wsHandler.ServeWS)
	r.GET("/api/v1/ws", authMiddleware, wsHandler.ServeWS)
}
