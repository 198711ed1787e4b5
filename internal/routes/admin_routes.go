package routes

import (
	"messaging_backend/internal/handlers"
	"messaging_backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAdminRoutes(api *gin.RouterGroup, appHandlers *handlers.AppHandlers, authMiddleware gin.HandlerFunc) {
	admin := api.Group("/admin")
	admin.Use(authMiddleware, middleware.RequireStaff())
	{
		appHandlers.UserHandler.RegisterAdminRoutes(admin)
		appHandlers.NotificationHandler.RegisterAdminRoutes(admin)
	}
}
