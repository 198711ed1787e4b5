package handlers

import (
	"net/http"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	*BaseHandler
	messageService    services.MessageService
	attachmentService services.AttachmentService
}

func NewMessageHandler(base *BaseHandler, messageService services.MessageService, attachmentService services.AttachmentService) *MessageHandler {
	return &MessageHandler{
		BaseHandler:       base,
		messageService:    messageService,
		attachmentService: attachmentService,
	}
}

func (h *MessageHandler) RegisterRoutes(r *gin.RouterGroup) {
	messages := r.Group("/messages")
	{
		messages.POST("", h.CreateMessage)
		messages.GET("/unread", h.ListUnread)

		messages.GET("/:id", h.GetMessage)
		messages.PUT("/:id", h.EditMessage)
		messages.DELETE("/:id", h.DeleteMessage)
		messages.POST("/:id/read", h.MarkAsRead)
		messages.POST("/:id/unread", h.MarkAsUnread)
		messages.POST("/:id/delivered", h.MarkAsDelivered)
		messages.POST("/:id/reply", h.Reply)
		messages.POST("/:id/forward", h.Forward)
		messages.GET("/:id/thread-depth", h.GetThreadDepth)

		messages.GET("/:id/attachments", h.ListAttachments)
		messages.POST("/:id/attachments", h.UploadAttachment)
	}
}

func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req dto.CreateMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	access, ok := h.RequireConversation(c, req.ConversationID, auth.SendMessageCaps...)
	if !ok {
		return
	}

	message, err := h.messageService.CreateMessage(c.Request.Context(), h.GetDB(c), access.UserID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) ListUnread(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	messages, err := h.messageService.ListUnreadForUser(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.ReadConversationCaps...)
	if !ok {
		return
	}

	message, err := h.messageService.GetMessage(h.GetDB(c), access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.EditMessageCaps...)
	if !ok {
		return
	}

	var req dto.EditMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, err := h.messageService.EditContent(h.GetDB(c), access.UserID, access.Message.ID, req.Content)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.DeleteMessageCaps...)
	if !ok {
		return
	}

	if err := h.messageService.SoftDelete(h.GetDB(c), access.UserID, access.Message.ID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	message, err := h.messageService.MarkAsRead(h.GetDB(c), access.UserID, access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) MarkAsUnread(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	message, err := h.messageService.MarkAsUnread(h.GetDB(c), access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) MarkAsDelivered(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	message, err := h.messageService.MarkAsDelivered(h.GetDB(c), access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) Reply(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	var req dto.ReplyRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, err := h.messageService.Reply(c.Request.Context(), h.GetDB(c), access.UserID, access.Message.ID, req.Content)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// Forward needs read access to the source; membership of the target
// conversation is checked when the copy is created.
func (h *MessageHandler) Forward(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.IsActiveUser)
	if !ok {
		return
	}

	var req dto.ForwardRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, err := h.messageService.Forward(c.Request.Context(), h.GetDB(c), access.UserID, access.Message.ID, req.ConversationID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) GetThreadDepth(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.ReadConversationCaps...)
	if !ok {
		return
	}

	depth, err := h.messageService.GetThreadDepth(h.GetDB(c), access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, depth)
}

// --- Attachments ---

func (h *MessageHandler) ListAttachments(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.ReadConversationCaps...)
	if !ok {
		return
	}

	attachments, err := h.attachmentService.ListForMessage(h.GetDB(c), access.Message.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func (h *MessageHandler) UploadAttachment(c *gin.Context) {
	access, ok := h.RequireMessage(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		h.HandleServiceError(c, apperrors.FieldError("file", "Multipart field 'file' is required"))
		return
	}

	attachment, err := h.attachmentService.Upload(c.Request.Context(), h.GetDB(c), access.UserID, access.Message.ID, file)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}
