package services

import (
	"errors"
	"fmt"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// ChatSettings carries the configurable conversation policies.
type ChatSettings struct {
	Limits chat.Limits
	// FloorAllTypes applies the two-participant floor to group and channel
	// conversations as well as direct ones.
	FloorAllTypes bool
}

func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		Limits: chat.Limits{GroupMaxParticipants: 256, ChannelMaxParticipants: 1000},
	}
}

type ConversationService interface {
	// Conversation operations
	CreateConversation(db *gorm.DB, creatorID string, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	GetOrCreateDirect(db *gorm.DB, userA, userB string) (*dto.ConversationResponse, error)
	GetConversation(db *gorm.DB, conversationID, userID string) (*dto.ConversationResponse, error)
	ListForUser(db *gorm.DB, userID string, criteria dto.ConversationCriteria) (*dto.ConversationListResponse, error)
	UpdateSettings(db *gorm.DB, conversationID string, req *dto.UpdateConversationRequest) (*dto.ConversationResponse, error)

	// Status transitions
	Archive(db *gorm.DB, conversationID string) error
	Close(db *gorm.DB, conversationID string) error
	Activate(db *gorm.DB, conversationID string) error
	Mute(db *gorm.DB, conversationID string) error

	// Participant operations
	AddParticipant(db *gorm.DB, conversationID, userID string, isAdmin bool) (*chat.ConversationParticipant, error)
	RemoveParticipant(db *gorm.DB, conversationID, userID string) error
	Leave(db *gorm.DB, conversationID, userID string) error
	IsParticipant(db *gorm.DB, conversationID, userID string) (bool, error)
	ListParticipants(db *gorm.DB, conversationID string) ([]*dto.ParticipantResponse, error)
	SetParticipantAdmin(db *gorm.DB, conversationID, userID string, isAdmin bool) error

	// Read state
	GetUnreadCountForUser(db *gorm.DB, conversationID, userID string) (int64, error)
	MarkConversationRead(db *gorm.DB, conversationID, userID string) (int64, error)

	// updateLastMessage is reserved for the message creation transaction.
	updateLastMessage(tx *gorm.DB, conversation *chat.Conversation, message *chat.Message) error
}

type conversationService struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	userRepo         repositories.UserRepository
	settings         ChatSettings
}

func NewConversationService(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	settings ChatSettings,
) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		settings:         settings,
	}
}

// ============================================
// Conversation operations
// ============================================

func (s *conversationService) CreateConversation(db *gorm.DB, creatorID string, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	convType := chat.ConversationType(req.Type)
	if !convType.IsValid() {
		return nil, apperrors.FieldError("type", "Must be one of: direct, group, channel")
	}

	others := uniqueExcluding(req.ParticipantIDs, creatorID)
	if convType == chat.ConversationDirect {
		if len(others) != 1 {
			return nil, apperrors.FieldError("participant_ids", "A direct conversation needs exactly one other participant")
		}
		return s.GetOrCreateDirect(db, creatorID, others[0])
	}

	conversation := chat.NewConversation(convType, creatorID, s.settings.Limits)
	conversation.Name = req.Name
	conversation.Description = req.Description
	conversation.MessageRetentionDays = req.MessageRetentionDays
	if req.IsPrivate != nil {
		conversation.IsPrivate = *req.IsPrivate
	}
	if req.AllowFileSharing != nil {
		conversation.AllowFileSharing = *req.AllowFileSharing
	}
	if req.AllowVoiceMessages != nil {
		conversation.AllowVoiceMessages = *req.AllowVoiceMessages
	}
	if req.MaxParticipants != nil {
		limit := s.settings.Limits.MaxParticipants(convType)
		if *req.MaxParticipants > limit {
			return nil, apperrors.FieldError("max_participants", fmt.Sprintf("Must be at most %d", limit))
		}
		conversation.MaxParticipants = *req.MaxParticipants
	}
	if !conversation.HasCapacity(len(others)) {
		return nil, apperrors.ErrConversationFull
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if err := s.ensureUsersExist(tx, append([]string{creatorID}, others...)); err != nil {
		return nil, err
	}

	if err := s.conversationRepo.CreateConversation(tx, conversation); err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := models.Now()
	members := append([]string{creatorID}, others...)
	for i, userID := range members {
		participant := &chat.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         userID,
			JoinedAt:       now,
			IsAdmin:        i == 0,
		}
		if err := s.conversationRepo.AddParticipant(tx, participant); err != nil {
			return nil, handleChatError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.Info("conversation created",
		"conversation_id", conversation.ID,
		"type", conversation.Type,
		"participants", len(members),
	)
	return s.buildConversationResponse(db, conversation, creatorID, true)
}

// GetOrCreateDirect returns the oldest direct conversation between the two
// users, creating it when none exists.
func (s *conversationService) GetOrCreateDirect(db *gorm.DB, userA, userB string) (*dto.ConversationResponse, error) {
	if userA == userB {
		return nil, apperrors.FieldError("user_id", "Cannot start a direct conversation with yourself")
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	existing, err := s.conversationRepo.FindDirectBetween(tx, userA, userB)
	if err == nil {
		tx.Rollback()
		return s.buildConversationResponse(db, existing, userA, true)
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return nil, apperrors.InternalError(err)
	}

	if err := s.ensureUsersExist(tx, []string{userA, userB}); err != nil {
		return nil, err
	}

	conversation := chat.NewConversation(chat.ConversationDirect, userA, s.settings.Limits)
	if err := s.conversationRepo.CreateConversation(tx, conversation); err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := models.Now()
	for _, userID := range []string{userA, userB} {
		participant := &chat.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         userID,
			JoinedAt:       now,
			IsAdmin:        true,
		}
		if err := s.conversationRepo.AddParticipant(tx, participant); err != nil {
			return nil, handleChatError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return s.buildConversationResponse(db, conversation, userA, true)
}

func (s *conversationService) GetConversation(db *gorm.DB, conversationID, userID string) (*dto.ConversationResponse, error) {
	conversation, err := s.conversationRepo.FindConversationByID(db, conversationID)
	if err != nil {
		return nil, handleChatError(err)
	}
	return s.buildConversationResponse(db, conversation, userID, true)
}

func (s *conversationService) ListForUser(db *gorm.DB, userID string, criteria dto.ConversationCriteria) (*dto.ConversationListResponse, error) {
	page, pageSize := criteria.Normalize()
	conversations, total, err := s.conversationRepo.FindConversationsForUser(db, userID, repositories.ConversationCriteria{
		Type:          chat.ConversationType(criteria.Type),
		Status:        chat.ConversationStatus(criteria.Status),
		IncludeClosed: criteria.IncludeClosed,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := &dto.ConversationListResponse{
		Conversations: make([]*dto.ConversationResponse, 0, len(conversations)),
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
	}
	for i := range conversations {
		item, err := s.buildConversationResponse(db, &conversations[i], userID, false)
		if err != nil {
			return nil, err
		}
		resp.Conversations = append(resp.Conversations, item)
	}
	return resp, nil
}

func (s *conversationService) UpdateSettings(db *gorm.DB, conversationID string, req *dto.UpdateConversationRequest) (*dto.ConversationResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationForUpdate(tx, conversationID)
	if err != nil {
		return nil, handleChatError(err)
	}

	if req.Name != nil {
		conversation.Name = *req.Name
	}
	if req.Description != nil {
		conversation.Description = *req.Description
	}
	if req.IsPrivate != nil {
		conversation.IsPrivate = *req.IsPrivate
	}
	if req.AllowFileSharing != nil {
		conversation.AllowFileSharing = *req.AllowFileSharing
	}
	if req.AllowVoiceMessages != nil {
		conversation.AllowVoiceMessages = *req.AllowVoiceMessages
	}
	if req.MessageRetentionDays != nil {
		conversation.MessageRetentionDays = req.MessageRetentionDays
	}
	if req.MaxParticipants != nil {
		if conversation.IsDirect() {
			return nil, apperrors.InvariantViolation("chat", "Direct conversations always have two participants")
		}
		limit := s.settings.Limits.MaxParticipants(conversation.Type)
		if *req.MaxParticipants > limit {
			return nil, apperrors.FieldError("max_participants", fmt.Sprintf("Must be at most %d", limit))
		}
		count, err := s.conversationRepo.CountParticipants(tx, conversationID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if int64(*req.MaxParticipants) < count {
			return nil, apperrors.InvariantViolation("chat", "Conversation already has more participants than the new limit")
		}
		conversation.MaxParticipants = *req.MaxParticipants
	}

	if err := s.conversationRepo.UpdateConversation(tx, conversation); err != nil {
		return nil, handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewConversationResponse(conversation), nil
}

// ============================================
// Status transitions
// ============================================

func (s *conversationService) Archive(db *gorm.DB, conversationID string) error {
	return s.transition(db, conversationID, (*chat.Conversation).Archive)
}

func (s *conversationService) Close(db *gorm.DB, conversationID string) error {
	return s.transition(db, conversationID, func(c *chat.Conversation) error {
		c.Close()
		return nil
	})
}

func (s *conversationService) Activate(db *gorm.DB, conversationID string) error {
	return s.transition(db, conversationID, (*chat.Conversation).Activate)
}

func (s *conversationService) Mute(db *gorm.DB, conversationID string) error {
	return s.transition(db, conversationID, (*chat.Conversation).Mute)
}

func (s *conversationService) transition(db *gorm.DB, conversationID string, apply func(*chat.Conversation) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationForUpdate(tx, conversationID)
	if err != nil {
		return handleChatError(err)
	}
	from := conversation.Status
	if err := apply(conversation); err != nil {
		return handleChatError(err)
	}
	if err := s.conversationRepo.UpdateConversation(tx, conversation); err != nil {
		return handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	logger.Info("conversation status changed", "conversation_id", conversationID, "from", from, "to", conversation.Status)
	return nil
}

// ============================================
// Participant operations
// ============================================

// AddParticipant is a no-op returning the existing membership when the user
// already belongs to the conversation. Capacity is checked under the
// conversation row lock so concurrent joins cannot overshoot it.
func (s *conversationService) AddParticipant(db *gorm.DB, conversationID, userID string, isAdmin bool) (*chat.ConversationParticipant, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationForUpdate(tx, conversationID)
	if err != nil {
		return nil, handleChatError(err)
	}

	existing, err := s.conversationRepo.FindParticipant(tx, conversationID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrParticipantNotFound) {
		return nil, apperrors.InternalError(err)
	}

	if conversation.IsClosed() {
		return nil, apperrors.ErrConversationClosed
	}
	if _, err := s.userRepo.FindByID(tx, userID); err != nil {
		return nil, handleChatError(err)
	}

	count, err := s.conversationRepo.CountParticipants(tx, conversationID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !conversation.HasCapacity(int(count)) {
		return nil, apperrors.ErrConversationFull
	}

	participant := &chat.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       models.Now(),
		IsAdmin:        isAdmin,
	}
	if err := s.conversationRepo.AddParticipant(tx, participant); err != nil {
		return nil, handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return participant, nil
}

func (s *conversationService) RemoveParticipant(db *gorm.DB, conversationID, userID string) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationForUpdate(tx, conversationID)
	if err != nil {
		return handleChatError(err)
	}
	if _, err := s.conversationRepo.FindParticipant(tx, conversationID, userID); err != nil {
		return handleChatError(err)
	}

	count, err := s.conversationRepo.CountParticipants(tx, conversationID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if !conversation.CanRemoveParticipant(int(count), s.settings.FloorAllTypes) {
		return apperrors.ErrParticipantFloor
	}

	if err := s.conversationRepo.RemoveParticipant(tx, conversationID, userID); err != nil {
		return handleChatError(err)
	}
	return tx.Commit().Error
}

// Leave follows the same floor rules as removal by an admin.
func (s *conversationService) Leave(db *gorm.DB, conversationID, userID string) error {
	return s.RemoveParticipant(db, conversationID, userID)
}

func (s *conversationService) IsParticipant(db *gorm.DB, conversationID, userID string) (bool, error) {
	ok, err := s.conversationRepo.IsParticipant(db, conversationID, userID)
	if err != nil {
		return false, apperrors.InternalError(err)
	}
	return ok, nil
}

func (s *conversationService) ListParticipants(db *gorm.DB, conversationID string) ([]*dto.ParticipantResponse, error) {
	if _, err := s.conversationRepo.FindConversationByID(db, conversationID); err != nil {
		return nil, handleChatError(err)
	}
	participants, err := s.conversationRepo.FindParticipants(db, conversationID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return participantResponses(participants), nil
}

func (s *conversationService) SetParticipantAdmin(db *gorm.DB, conversationID, userID string, isAdmin bool) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	participant, err := s.conversationRepo.FindParticipant(tx, conversationID, userID)
	if err != nil {
		return handleChatError(err)
	}
	participant.IsAdmin = isAdmin
	if err := s.conversationRepo.UpdateParticipant(tx, participant); err != nil {
		return handleChatError(err)
	}
	return tx.Commit().Error
}

// ============================================
// Read state
// ============================================

func (s *conversationService) GetUnreadCountForUser(db *gorm.DB, conversationID, userID string) (int64, error) {
	if _, err := s.conversationRepo.FindParticipant(db, conversationID, userID); err != nil {
		return 0, handleChatError(err)
	}
	count, err := s.messageRepo.CountUnread(db, conversationID, userID)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

// MarkConversationRead marks every unread message from other senders as read
// and moves the participant's read marker.
func (s *conversationService) MarkConversationRead(db *gorm.DB, conversationID, userID string) (int64, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return 0, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	participant, err := s.conversationRepo.FindParticipant(tx, conversationID, userID)
	if err != nil {
		return 0, handleChatError(err)
	}

	now := models.Now()
	updated, err := s.messageRepo.MarkConversationRead(tx, conversationID, userID, now)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	participant.MarkRead(now)
	if err := s.conversationRepo.UpdateParticipant(tx, participant); err != nil {
		return 0, handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return 0, apperrors.InternalError(err)
	}
	return updated, nil
}

func (s *conversationService) updateLastMessage(tx *gorm.DB, conversation *chat.Conversation, message *chat.Message) error {
	conversation.SetLastMessage(message.ID, message.CreatedAt)
	return s.conversationRepo.UpdateLastMessage(tx, conversation.ID, message.ID, message.CreatedAt)
}

// ============================================
// Helpers
// ============================================

func (s *conversationService) ensureUsersExist(db *gorm.DB, ids []string) error {
	users, err := s.userRepo.FindByIDs(db, ids)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if len(users) != len(ids) {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *conversationService) buildConversationResponse(db *gorm.DB, conversation *chat.Conversation, userID string, withParticipants bool) (*dto.ConversationResponse, error) {
	resp := dto.NewConversationResponse(conversation)

	count, err := s.conversationRepo.CountParticipants(db, conversation.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	resp.ParticipantCount = count

	if userID != "" {
		unread, err := s.messageRepo.CountUnread(db, conversation.ID, userID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		resp.UnreadCount = unread
	}

	if withParticipants {
		participants, err := s.conversationRepo.FindParticipants(db, conversation.ID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		resp.Participants = participantResponses(participants)
	}
	return resp, nil
}

func participantResponses(participants []chat.ConversationParticipant) []*dto.ParticipantResponse {
	now := models.Now()
	result := make([]*dto.ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		item := &dto.ParticipantResponse{
			UserID:             p.UserID,
			IsAdmin:            p.IsAdmin,
			JoinedAt:           p.JoinedAt,
			LastReadAt:         p.LastReadAt,
			NotificationsMuted: p.NotificationsMuted,
		}
		if p.User != nil {
			item.DisplayName = p.User.DisplayName()
			item.IsOnline = p.User.IsOnline(now)
		}
		result = append(result, item)
	}
	return result
}

// uniqueExcluding drops duplicates, empty ids and exclude, keeping order.
func uniqueExcluding(ids []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
