package handlers

import (
	"net/http"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type AttachmentHandler struct {
	*BaseHandler
	attachmentService services.AttachmentService
}

func NewAttachmentHandler(base *BaseHandler, attachmentService services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{
		BaseHandler:       base,
		attachmentService: attachmentService,
	}
}

func (h *AttachmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	attachments := r.Group("/attachments")
	{
		attachments.GET("/:id", h.GetAttachment)
		attachments.GET("/:id/url", h.GetDownloadURL)
		attachments.DELETE("/:id", h.DeleteAttachment)
	}
}

// authorizeAttachment resolves the attachment through its message and checks caps.
func (h *AttachmentHandler) authorizeAttachment(c *gin.Context, caps ...auth.Capability) (*auth.Access, string, bool) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return nil, "", false
	}
	access, attachment, err := h.access.ResolveAttachment(h.GetDB(c), userID, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return nil, "", false
	}
	if err := auth.Require(access, caps...); err != nil {
		h.HandleServiceError(c, err)
		return nil, "", false
	}
	return access, attachment.ID, true
}

func (h *AttachmentHandler) GetAttachment(c *gin.Context) {
	_, attachmentID, ok := h.authorizeAttachment(c, auth.ReadConversationCaps...)
	if !ok {
		return
	}

	attachment, err := h.attachmentService.Get(h.GetDB(c), attachmentID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAttachmentResponse(attachment))
}

func (h *AttachmentHandler) GetDownloadURL(c *gin.Context) {
	_, attachmentID, ok := h.authorizeAttachment(c, auth.ReadConversationCaps...)
	if !ok {
		return
	}

	url, err := h.attachmentService.GetDownloadURL(c.Request.Context(), h.GetDB(c), attachmentID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

func (h *AttachmentHandler) DeleteAttachment(c *gin.Context) {
	access, attachmentID, ok := h.authorizeAttachment(c, auth.DeleteMessageCaps...)
	if !ok {
		return
	}

	if err := h.attachmentService.SoftDelete(h.GetDB(c), access.UserID, attachmentID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
