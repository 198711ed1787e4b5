package routes

import (
	"messaging_backend/internal/handlers"
	"messaging_backend/internal/logger"
	"messaging_backend/ws"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers every HTTP and WebSocket route.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.Handler,
	authMiddleware gin.HandlerFunc,
) {
	SetupPublicRoutes(ginRouter)

	api := ginRouter.Group("/api/v1")
	appHandlers.AuthHandler.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(authMiddleware)
	{
		appHandlers.UserHandler.RegisterRoutes(protected)
		appHandlers.ConversationHandler.RegisterRoutes(protected)
		appHandlers.MessageHandler.RegisterRoutes(protected)
		appHandlers.AttachmentHandler.RegisterRoutes(protected)
		appHandlers.NotificationHandler.RegisterRoutes(protected)
	}

	SetupAdminRoutes(api, appHandlers, authMiddleware)
	SetupWebSocketRoutes(ginRouter, wsHandler, authMiddleware)

	logger.Info("Routes registered", "routes", len(ginRouter.Routes()))
}
