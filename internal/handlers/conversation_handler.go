package handlers

import (
	"net/http"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ConversationHandler struct {
	*BaseHandler
	conversationService services.ConversationService
	messageService      services.MessageService
}

func NewConversationHandler(base *BaseHandler, conversationService services.ConversationService, messageService services.MessageService) *ConversationHandler {
	return &ConversationHandler{
		BaseHandler:         base,
		conversationService: conversationService,
		messageService:      messageService,
	}
}

func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.GET("", h.ListConversations)
		conversations.POST("/direct", h.GetOrCreateDirect)

		conversations.GET("/:id", h.GetConversation)
		conversations.PUT("/:id", h.UpdateSettings)
		conversations.POST("/:id/archive", h.Archive)
		conversations.POST("/:id/close", h.Close)
		conversations.POST("/:id/activate", h.Activate)
		conversations.POST("/:id/mute", h.Mute)
		conversations.POST("/:id/leave", h.Leave)
		conversations.POST("/:id/read", h.MarkRead)
		conversations.GET("/:id/unread-count", h.GetUnreadCount)

		conversations.GET("/:id/participants", h.ListParticipants)
		conversations.POST("/:id/participants", h.AddParticipant)
		conversations.DELETE("/:id/participants/:userId", h.RemoveParticipant)
		conversations.PUT("/:id/participants/:userId/admin", h.SetParticipantAdmin)

		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/threads", h.CreateThread)
	}
}

// --- Conversations ---

func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	caps := []auth.Capability{auth.IsActiveUser}
	if chat.ConversationType(req.Type) != chat.ConversationDirect {
		caps = auth.CreateGroupCaps
	}
	access, ok := h.RequireUser(c, caps...)
	if !ok {
		return
	}

	conversation, err := h.conversationService.CreateConversation(h.GetDB(c), access.UserID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) GetOrCreateDirect(c *gin.Context) {
	access, ok := h.RequireUser(c, auth.IsActiveUser)
	if !ok {
		return
	}

	var req dto.CreateDirectRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	conversation, err := h.conversationService.GetOrCreateDirect(h.GetDB(c), access.UserID, req.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var criteria dto.ConversationCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}

	response, err := h.conversationService.ListForUser(h.GetDB(c), userID, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ReadConversationCaps...)
	if !ok {
		return
	}

	conversation, err := h.conversationService.GetConversation(h.GetDB(c), access.Conversation.ID, access.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) UpdateSettings(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ManageConversationCaps...)
	if !ok {
		return
	}

	var req dto.UpdateConversationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	conversation, err := h.conversationService.UpdateSettings(h.GetDB(c), access.Conversation.ID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) Archive(c *gin.Context) {
	h.transition(c, h.conversationService.Archive, "Conversation archived")
}

func (h *ConversationHandler) Close(c *gin.Context) {
	h.transition(c, h.conversationService.Close, "Conversation closed")
}

func (h *ConversationHandler) Activate(c *gin.Context) {
	h.transition(c, h.conversationService.Activate, "Conversation activated")
}

func (h *ConversationHandler) Mute(c *gin.Context) {
	h.transition(c, h.conversationService.Mute, "Conversation muted")
}

func (h *ConversationHandler) transition(c *gin.Context, apply func(db *gorm.DB, conversationID string) error, message string) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ManageConversationCaps...)
	if !ok {
		return
	}

	if err := apply(h.GetDB(c), access.Conversation.ID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.IsParticipant)
	if !ok {
		return
	}

	if err := h.conversationService.Leave(h.GetDB(c), access.Conversation.ID, access.UserID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left conversation"})
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	updated, err := h.conversationService.MarkConversationRead(h.GetDB(c), access.Conversation.ID, access.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UpdatedResponse{Updated: updated})
}

func (h *ConversationHandler) GetUnreadCount(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.IsParticipant)
	if !ok {
		return
	}

	count, err := h.conversationService.GetUnreadCountForUser(h.GetDB(c), access.Conversation.ID, access.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CountResponse{Count: count})
}

// --- Participants ---

func (h *ConversationHandler) ListParticipants(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ReadConversationCaps...)
	if !ok {
		return
	}

	participants, err := h.conversationService.ListParticipants(h.GetDB(c), access.Conversation.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ManageConversationCaps...)
	if !ok {
		return
	}

	var req dto.AddParticipantRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	participant, err := h.conversationService.AddParticipant(h.GetDB(c), access.Conversation.ID, req.UserID, req.IsAdmin)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"conversation_id": participant.ConversationID,
		"user_id":         participant.UserID,
		"is_admin":        participant.IsAdmin,
		"joined_at":       participant.JoinedAt,
	})
}

func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ManageConversationCaps...)
	if !ok {
		return
	}

	if err := h.conversationService.RemoveParticipant(h.GetDB(c), access.Conversation.ID, c.Param("userId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) SetParticipantAdmin(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.ManageConversationCaps...)
	if !ok {
		return
	}

	var req dto.SetParticipantAdminRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.conversationService.SetParticipantAdmin(h.GetDB(c), access.Conversation.ID, c.Param("userId"), req.IsAdmin); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Participant updated"})
}

// --- Messages and threads ---

func (h *ConversationHandler) ListMessages(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	var criteria dto.MessageCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}

	messages, err := h.messageService.ListMessages(h.GetDB(c), access.Conversation.ID, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ConversationHandler) CreateThread(c *gin.Context) {
	access, ok := h.RequireConversation(c, c.Param("id"), auth.SendMessageCaps...)
	if !ok {
		return
	}

	var req dto.CreateThreadRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}
	req.ConversationID = access.Conversation.ID

	thread, err := h.messageService.CreateThread(h.GetDB(c), access.UserID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}
