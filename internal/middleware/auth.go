package middleware

import (
	"strings"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/logger"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware checks the bearer JWT and stores the principal in the context.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header missing or invalid"))
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(tokenStr)
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Rejected token", "error", err.Error(), "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Invalid token"))
			c.Abort()
			return
		}

		c.Set(string(contextkeys.UserIDKey), claims.UserID)
		c.Set(string(contextkeys.RoleKey), claims.Role)
		c.Set(string(contextkeys.IsStaffKey), claims.IsStaff)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// RequireStaff rejects principals whose token does not carry staff rights.
// The capability checks in the handlers still re-check against the stored user.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(string(contextkeys.IsStaffKey)) {
			apperrors.HandleError(c, apperrors.NewForbiddenError("Staff permissions required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or "" when there is none.
func GetUserID(c *gin.Context) string {
	return c.GetString(string(contextkeys.UserIDKey))
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on websocket upgrades, so a "token" query parameter is accepted too.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}
