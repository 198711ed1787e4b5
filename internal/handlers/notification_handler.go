package handlers

import (
	"net/http"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
	deliveryService     services.DeliveryService
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService, deliveryService services.DeliveryService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
		deliveryService:     deliveryService,
	}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.CreateNotification)
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.GetUnreadCount)
		notifications.POST("/read-all", h.MarkAllAsRead)
		notifications.DELETE("/read", h.DeleteRead)
		notifications.GET("/preferences", h.GetPreferences)
		notifications.PUT("/preferences", h.UpdatePreference)

		notifications.GET("/:id", h.GetNotification)
		notifications.POST("/:id/read", h.MarkAsRead)
		notifications.POST("/:id/click", h.MarkAsClicked)
		notifications.POST("/:id/dismiss", h.Dismiss)
		notifications.POST("/:id/archive", h.Archive)

		// Provider callbacks
		notifications.POST("/:id/email-events", h.RecordEmailEvent)
		notifications.POST("/:id/push-events", h.RecordPushEvent)
	}
}

// RegisterAdminRoutes expects a group already restricted to staff.
func (h *NotificationHandler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.POST("/notification-categories", h.CreateCategory)
	admin.GET("/notification-categories", h.ListCategories)
	admin.POST("/notification-channels", h.CreateChannel)
	admin.GET("/notification-channels", h.ListChannels)
}

// --- Dispatch ---

// CreateNotification lets staff notify anyone; other users may only notify
// themselves.
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req dto.CreateNotificationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	isRecipient := func(a *auth.Access) error {
		if a.UserID != req.RecipientID {
			return apperrors.NewForbiddenError("Only staff can notify other users")
		}
		return nil
	}
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.AnyOf(isRecipient, auth.IsStaff)); !ok {
		return
	}

	notification, err := h.notificationService.Create(c.Request.Context(), h.GetDB(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, notification)
}

// --- User actions ---

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var criteria dto.NotificationCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}

	response, err := h.notificationService.List(h.GetDB(c), userID, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) GetNotification(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	notification, err := h.notificationService.Get(h.GetDB(c), userID, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CountResponse{Count: count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	h.userAction(c, h.notificationService.MarkAsRead)
}

func (h *NotificationHandler) MarkAsClicked(c *gin.Context) {
	h.userAction(c, h.notificationService.MarkAsClicked)
}

func (h *NotificationHandler) Dismiss(c *gin.Context) {
	h.userAction(c, h.notificationService.Dismiss)
}

func (h *NotificationHandler) Archive(c *gin.Context) {
	h.userAction(c, h.notificationService.Archive)
}

func (h *NotificationHandler) userAction(c *gin.Context, action func(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	notification, err := action(h.GetDB(c), userID, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAllRead(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UpdatedResponse{Updated: updated})
}

func (h *NotificationHandler) DeleteRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	deleted, err := h.notificationService.DeleteRead(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// --- Preferences ---

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	preferences, err := h.notificationService.GetPreferences(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": preferences})
}

func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.UpdatePreferenceRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	preference, err := h.notificationService.UpdatePreference(h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, preference)
}

// --- Provider callbacks ---

func (h *NotificationHandler) RecordEmailEvent(c *gin.Context) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.IsStaff); !ok {
		return
	}

	var req dto.EmailEventRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	record, err := h.deliveryService.RecordEmailEvent(h.GetDB(c), c.Param("id"), req.Event, req.BounceType)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeliveryResponse{Email: record})
}

func (h *NotificationHandler) RecordPushEvent(c *gin.Context) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.IsStaff); !ok {
		return
	}

	var req dto.PushEventRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	record, err := h.deliveryService.RecordPushEvent(h.GetDB(c), c.Param("id"), req.Event, req.Error)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeliveryResponse{Push: record})
}

// --- Admin: categories and channels ---

func (h *NotificationHandler) CreateCategory(c *gin.Context) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.IsStaff); !ok {
		return
	}

	var req dto.CreateCategoryRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	category, err := h.notificationService.CreateCategory(h.GetDB(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *NotificationHandler) ListCategories(c *gin.Context) {
	categories, err := h.notificationService.ListCategories(h.GetDB(c), c.Query("active") == "true")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *NotificationHandler) CreateChannel(c *gin.Context) {
	if _, ok := h.RequireUser(c, auth.IsActiveUser, auth.IsStaff); !ok {
		return
	}

	var req dto.CreateChannelRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	channel, err := h.notificationService.CreateChannel(h.GetDB(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *NotificationHandler) ListChannels(c *gin.Context) {
	channels, err := h.notificationService.ListChannels(h.GetDB(c), c.Query("active") == "true")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}
