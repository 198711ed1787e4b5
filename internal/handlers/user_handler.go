package handlers

import (
	"net/http"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UserHandler struct {
	*BaseHandler
	userService services.UserService
}

func NewUserHandler(base *BaseHandler, userService services.UserService) *UserHandler {
	return &UserHandler{
		BaseHandler: base,
		userService: userService,
	}
}

func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.GET("/me", h.GetMe)
		users.PUT("/me", h.UpdateMe)
		users.POST("/me/seen", h.TouchLastSeen)
		users.GET("/:id", h.GetUser)
		users.GET("/:id/online", h.GetOnlineStatus)
	}
}

// RegisterAdminRoutes expects a group already restricted to staff.
func (h *UserHandler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	users := admin.Group("/users")
	{
		users.POST("/:id/suspend", h.Suspend)
		users.POST("/:id/unsuspend", h.Unsuspend)
		users.POST("/:id/verify", h.Verify)
		users.POST("/:id/unlock", h.Unlock)
	}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	access, ok := h.RequireUser(c, auth.IsActiveUser)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(h.GetDB(c), access.UserID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) TouchLastSeen(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.userService.TouchLastSeen(c.Request.Context(), h.GetDB(c), userID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser); !ok {
		return
	}

	var criteria dto.UserCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}

	users, err := h.userService.ListUsers(h.GetDB(c), criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}

	user, err := h.userService.GetUser(h.GetDB(c), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) GetOnlineStatus(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}
	userID := c.Param("id")

	online, err := h.userService.IsOnline(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OnlineStatusResponse{UserID: userID, IsOnline: online})
}

// --- Admin ---

func (h *UserHandler) Suspend(c *gin.Context) {
	h.adminAction(c, h.userService.Suspend, "User suspended")
}

func (h *UserHandler) Unsuspend(c *gin.Context) {
	h.adminAction(c, h.userService.Unsuspend, "User unsuspended")
}

func (h *UserHandler) Verify(c *gin.Context) {
	h.adminAction(c, h.userService.Verify, "User verified")
}

func (h *UserHandler) Unlock(c *gin.Context) {
	h.adminAction(c, h.userService.Unlock, "User unlocked")
}

func (h *UserHandler) adminAction(c *gin.Context, action func(db *gorm.DB, userID string) error, message string) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.IsStaff); !ok {
		return
	}

	if err := action(h.GetDB(c), c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}
