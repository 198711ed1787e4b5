package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// unreadListLimit caps ListUnreadForUser.
const unreadListLimit = 200

type MessageService interface {
	CreateMessage(ctx context.Context, db *gorm.DB, senderID string, req *dto.CreateMessageRequest) (*dto.MessageResponse, error)
	GetMessage(db *gorm.DB, messageID string) (*dto.MessageResponse, error)
	ListMessages(db *gorm.DB, conversationID string, criteria dto.MessageCriteria) (*dto.MessageListResponse, error)
	ListUnreadForUser(db *gorm.DB, userID string) ([]*dto.MessageResponse, error)

	EditContent(db *gorm.DB, actorID, messageID, content string) (*dto.MessageResponse, error)
	SoftDelete(db *gorm.DB, actorID, messageID string) error
	MarkAsRead(db *gorm.DB, actorID, messageID string) (*dto.MessageResponse, error)
	MarkAsUnread(db *gorm.DB, messageID string) (*dto.MessageResponse, error)
	MarkAsDelivered(db *gorm.DB, messageID string) (*dto.MessageResponse, error)

	Reply(ctx context.Context, db *gorm.DB, senderID, messageID, content string) (*dto.MessageResponse, error)
	Forward(ctx context.Context, db *gorm.DB, senderID, messageID, targetConversationID string) (*dto.MessageResponse, error)

	CreateThread(db *gorm.DB, creatorID string, req *dto.CreateThreadRequest) (*dto.ThreadResponse, error)
	GetThreadDepth(db *gorm.DB, messageID string) (*dto.ThreadDepthResponse, error)

	// Typing tells the other participants that userID is typing.
	Typing(db *gorm.DB, userID, conversationID string) error
}

type messageService struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	userRepo         repositories.UserRepository
	conversations    ConversationService
	publisher        MessagePublisher
	notifier         MessageNotifier
}

func NewMessageService(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	conversations ConversationService,
	publisher MessagePublisher,
	notifier MessageNotifier,
) MessageService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &messageService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		conversations:    conversations,
		publisher:        publisher,
		notifier:         notifier,
	}
}

// prepareFunc runs inside the creation transaction once the sender and the
// conversation have been checked. It may adjust the request.
type prepareFunc func(tx *gorm.DB, conversation *chat.Conversation, req *dto.CreateMessageRequest) error

// ============================================
// Creation
// ============================================

func (s *messageService) CreateMessage(ctx context.Context, db *gorm.DB, senderID string, req *dto.CreateMessageRequest) (*dto.MessageResponse, error) {
	return s.create(ctx, db, senderID, req, nil)
}

func (s *messageService) create(ctx context.Context, db *gorm.DB, senderID string, req *dto.CreateMessageRequest, prepare prepareFunc) (*dto.MessageResponse, error) {
	content, err := chat.NormalizeContent(req.Content)
	if err != nil {
		return nil, handleChatError(err)
	}
	msgType := chat.MessageType(req.MessageType)
	if msgType == "" {
		msgType = chat.MessageText
	}
	if !msgType.IsValid() {
		return nil, apperrors.FieldError("message_type", "Unknown message type")
	}

	now := models.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperrors.FieldError("expires_at", "Must be in the future")
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationForUpdate(tx, req.ConversationID)
	if err != nil {
		return nil, handleChatError(err)
	}
	isMember, err := s.conversationRepo.IsParticipant(tx, conversation.ID, senderID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !isMember {
		return nil, apperrors.ErrSenderNotMember
	}
	if conversation.IsClosed() {
		return nil, apperrors.ErrConversationClosed
	}
	if msgType == chat.MessageAudio && !conversation.AllowVoiceMessages {
		return nil, apperrors.InvariantViolation("chat", "Voice messages are disabled for this conversation")
	}

	if prepare != nil {
		if err := prepare(tx, conversation, req); err != nil {
			return nil, err
		}
	}

	if req.ThreadID != nil {
		thread, err := s.messageRepo.FindThreadByID(tx, *req.ThreadID)
		if err != nil {
			if errors.Is(err, repositories.ErrThreadNotFound) {
				return nil, apperrors.FieldError("thread_id", "Thread does not exist")
			}
			return nil, apperrors.InternalError(err)
		}
		if thread.ConversationID != conversation.ID {
			return nil, apperrors.FieldError("thread_id", "Thread belongs to another conversation")
		}
	}
	if req.ReplyToID != nil {
		original, err := s.messageRepo.FindMessageByID(tx, *req.ReplyToID)
		if err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return nil, apperrors.FieldError("reply_to_id", "Message does not exist")
			}
			return nil, apperrors.InternalError(err)
		}
		if original.ConversationID != conversation.ID {
			return nil, apperrors.FieldError("reply_to_id", "Message belongs to another conversation")
		}
	}
	if req.RecipientID != nil {
		ok, err := s.conversationRepo.IsParticipant(tx, conversation.ID, *req.RecipientID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if !ok {
			return nil, apperrors.FieldError("recipient_id", "Recipient is not a participant of the conversation")
		}
	}

	message := &chat.Message{
		ConversationID: conversation.ID,
		ThreadID:       req.ThreadID,
		ReplyToID:      req.ReplyToID,
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		Content:        content,
		MessageType:    msgType,
		ExpiresAt:      req.ExpiresAt,
	}
	message.SetPriority(req.Priority)
	if message.ExpiresAt == nil && conversation.MessageRetentionDays != nil {
		expires := now.Add(time.Duration(*conversation.MessageRetentionDays) * 24 * time.Hour)
		message.ExpiresAt = &expires
	}

	if err := s.messageRepo.CreateMessage(tx, message); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.conversations.updateLastMessage(tx, conversation, message); err != nil {
		return nil, handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := dto.NewMessageResponse(message)
	s.afterCreate(ctx, db, conversation, message, resp)
	return resp, nil
}

// afterCreate fans the message out. Failures here never fail the send.
func (s *messageService) afterCreate(ctx context.Context, db *gorm.DB, conversation *chat.Conversation, message *chat.Message, resp *dto.MessageResponse) {
	participants, err := s.conversationRepo.FindParticipants(db, conversation.ID)
	if err != nil {
		logger.CtxWithError(ctx, "failed to load participants for fan-out", err, "conversation_id", conversation.ID)
		return
	}

	userIDs := make([]string, 0, len(participants))
	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
		if p.UserID != message.SenderID && !p.NotificationsMuted {
			recipients = append(recipients, p.UserID)
		}
	}

	s.publisher.PublishToUsers(userIDs, RealtimeEvent{
		Type:           EventMessageCreated,
		ConversationID: conversation.ID,
		Data:           resp,
	})

	if s.notifier == nil || len(recipients) == 0 || conversation.Status == chat.ConversationMuted {
		return
	}
	if err := s.notifier.NotifyNewMessage(ctx, db, message, recipients); err != nil {
		logger.CtxWithError(ctx, "failed to create new message notifications", err, "message_id", message.ID)
	}
}

// Reply posts into the original's thread, starting a thread rooted at the
// original when it has none.
func (s *messageService) Reply(ctx context.Context, db *gorm.DB, senderID, messageID, content string) (*dto.MessageResponse, error) {
	original, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	if original.IsDeleted {
		return nil, apperrors.ErrMessageDeleted
	}

	req := &dto.CreateMessageRequest{
		ConversationID: original.ConversationID,
		Content:        content,
		MessageType:    string(chat.MessageText),
		ReplyToID:      &original.ID,
	}
	return s.create(ctx, db, senderID, req, func(tx *gorm.DB, conversation *chat.Conversation, r *dto.CreateMessageRequest) error {
		if original.ThreadID != nil {
			r.ThreadID = original.ThreadID
			return nil
		}
		thread := &chat.MessageThread{
			ConversationID: conversation.ID,
			RootMessageID:  &original.ID,
			CreatedBy:      senderID,
		}
		if err := s.messageRepo.CreateThread(tx, thread); err != nil {
			return apperrors.InternalError(err)
		}
		r.ThreadID = &thread.ID
		return nil
	})
}

func (s *messageService) Forward(ctx context.Context, db *gorm.DB, senderID, messageID, targetConversationID string) (*dto.MessageResponse, error) {
	original, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	if original.IsDeleted {
		return nil, apperrors.ErrMessageDeleted
	}

	canRead, err := s.conversationRepo.IsParticipant(db, original.ConversationID, senderID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !canRead {
		return nil, apperrors.NewForbiddenError("You cannot forward messages from this conversation")
	}

	author := "unknown"
	if user, err := s.userRepo.FindByID(db, original.SenderID); err == nil {
		author = user.DisplayName()
	}

	msgType := original.MessageType
	if msgType == chat.MessageSystem {
		msgType = chat.MessageText
	}
	return s.create(ctx, db, senderID, &dto.CreateMessageRequest{
		ConversationID: targetConversationID,
		Content:        fmt.Sprintf("Forwarded from %s:\n\n%s", author, original.Content),
		MessageType:    string(msgType),
	}, nil)
}

// ============================================
// Queries
// ============================================

func (s *messageService) GetMessage(db *gorm.DB, messageID string) (*dto.MessageResponse, error) {
	message, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	return dto.NewMessageResponse(message), nil
}

func (s *messageService) ListMessages(db *gorm.DB, conversationID string, criteria dto.MessageCriteria) (*dto.MessageListResponse, error) {
	if _, err := s.conversationRepo.FindConversationByID(db, conversationID); err != nil {
		return nil, handleChatError(err)
	}

	types := make([]chat.MessageType, 0, len(criteria.Types))
	for _, t := range criteria.Types {
		types = append(types, chat.MessageType(t))
	}

	page, pageSize := criteria.Normalize()
	messages, total, err := s.messageRepo.FindMessages(db, conversationID, repositories.MessageCriteria{
		ThreadID:       criteria.ThreadID,
		Types:          types,
		Before:         criteria.Before,
		After:          criteria.After,
		IncludeExpired: criteria.IncludeExpired,
		Now:            models.Now(),
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := &dto.MessageListResponse{
		Messages: make([]*dto.MessageResponse, 0, len(messages)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, dto.NewMessageResponse(&messages[i]))
	}
	return resp, nil
}

func (s *messageService) ListUnreadForUser(db *gorm.DB, userID string) ([]*dto.MessageResponse, error) {
	messages, err := s.messageRepo.FindUnreadForUser(db, userID, models.Now(), unreadListLimit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	result := make([]*dto.MessageResponse, 0, len(messages))
	for i := range messages {
		result = append(result, dto.NewMessageResponse(&messages[i]))
	}
	return result, nil
}

// ============================================
// Mutations
// ============================================

func (s *messageService) EditContent(db *gorm.DB, actorID, messageID, content string) (*dto.MessageResponse, error) {
	message, err := s.mutate(db, messageID, func(m *chat.Message, now time.Time) (bool, error) {
		if err := m.EditContent(content, now); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	resp := dto.NewMessageResponse(message)
	s.publishToConversation(db, message.ConversationID, EventMessageUpdated, resp)
	logger.Debug("message edited", "message_id", messageID, "actor_id", actorID)
	return resp, nil
}

func (s *messageService) SoftDelete(db *gorm.DB, actorID, messageID string) error {
	changed := false
	message, err := s.mutate(db, messageID, func(m *chat.Message, now time.Time) (bool, error) {
		changed = m.SoftDelete(actorID, now)
		return changed, nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.publishToConversation(db, message.ConversationID, EventMessageDeleted, map[string]string{"message_id": message.ID})
	}
	return nil
}

// MarkAsRead is reachable from the websocket as well as HTTP, so the reader's
// participancy is checked here.
func (s *messageService) MarkAsRead(db *gorm.DB, actorID, messageID string) (*dto.MessageResponse, error) {
	target, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	isMember, err := s.conversationRepo.IsParticipant(db, target.ConversationID, actorID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !isMember {
		return nil, apperrors.NewForbiddenError("You are not a participant of this conversation")
	}

	changed := false
	message, err := s.mutate(db, messageID, func(m *chat.Message, now time.Time) (bool, error) {
		changed = m.MarkAsRead(now)
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	resp := dto.NewMessageResponse(message)
	if changed && message.SenderID != actorID {
		s.publisher.PublishToUsers([]string{message.SenderID}, RealtimeEvent{
			Type:           EventMessageRead,
			ConversationID: message.ConversationID,
			Data:           map[string]interface{}{"message_id": message.ID, "reader_id": actorID, "read_at": message.ReadAt},
		})
	}
	return resp, nil
}

func (s *messageService) MarkAsUnread(db *gorm.DB, messageID string) (*dto.MessageResponse, error) {
	message, err := s.mutate(db, messageID, func(m *chat.Message, _ time.Time) (bool, error) {
		return m.MarkAsUnread(), nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponse(message), nil
}

func (s *messageService) MarkAsDelivered(db *gorm.DB, messageID string) (*dto.MessageResponse, error) {
	message, err := s.mutate(db, messageID, func(m *chat.Message, now time.Time) (bool, error) {
		return m.MarkAsDelivered(now), nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponse(message), nil
}

// mutate loads the message in a transaction and persists it when apply
// reports a change. Unchanged messages commit nothing.
func (s *messageService) mutate(db *gorm.DB, messageID string, apply func(*chat.Message, time.Time) (bool, error)) (*chat.Message, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	message, err := s.messageRepo.FindMessageByID(tx, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}

	changed, err := apply(message, models.Now())
	if err != nil {
		return nil, handleChatError(err)
	}
	if !changed {
		return message, nil
	}

	if err := s.messageRepo.UpdateMessage(tx, message); err != nil {
		return nil, handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return message, nil
}

func (s *messageService) publishToConversation(db *gorm.DB, conversationID, eventType string, data interface{}) {
	userIDs, err := s.conversationRepo.FindParticipantUserIDs(db, conversationID)
	if err != nil {
		logger.WithError(err).Warn("failed to load participants for event", "conversation_id", conversationID, "event", eventType)
		return
	}
	s.publisher.PublishToUsers(userIDs, RealtimeEvent{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
	})
}

func (s *messageService) Typing(db *gorm.DB, userID, conversationID string) error {
	ok, err := s.conversationRepo.IsParticipant(db, conversationID, userID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if !ok {
		return apperrors.NewForbiddenError("You are not a participant of this conversation")
	}
	userIDs, err := s.conversationRepo.FindParticipantUserIDs(db, conversationID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	s.publisher.PublishToUsers(uniqueExcluding(userIDs, userID), RealtimeEvent{
		Type:           EventTyping,
		ConversationID: conversationID,
		Data:           map[string]string{"user_id": userID},
	})
	return nil
}

// ============================================
// Threads
// ============================================

func (s *messageService) CreateThread(db *gorm.DB, creatorID string, req *dto.CreateThreadRequest) (*dto.ThreadResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.conversationRepo.FindConversationByID(tx, req.ConversationID)
	if err != nil {
		return nil, handleChatError(err)
	}
	isMember, err := s.conversationRepo.IsParticipant(tx, conversation.ID, creatorID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !isMember {
		return nil, apperrors.ErrSenderNotMember
	}

	if req.ParentThreadID != nil {
		parent, err := s.messageRepo.FindThreadByID(tx, *req.ParentThreadID)
		if err != nil {
			return nil, handleChatError(err)
		}
		if parent.ConversationID != conversation.ID {
			return nil, apperrors.FieldError("parent_thread_id", "Parent thread belongs to another conversation")
		}
	}
	if req.RootMessageID != nil {
		root, err := s.messageRepo.FindMessageByID(tx, *req.RootMessageID)
		if err != nil {
			return nil, handleChatError(err)
		}
		if root.ConversationID != conversation.ID {
			return nil, apperrors.FieldError("root_message_id", "Message belongs to another conversation")
		}
	}

	thread := &chat.MessageThread{
		ConversationID: conversation.ID,
		ParentThreadID: req.ParentThreadID,
		RootMessageID:  req.RootMessageID,
		Subject:        req.Subject,
		CreatedBy:      creatorID,
	}
	if err := s.messageRepo.CreateThread(tx, thread); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewThreadResponse(thread), nil
}

// GetThreadDepth counts the parent hops above the message's thread. Messages
// outside any thread have depth 0.
func (s *messageService) GetThreadDepth(db *gorm.DB, messageID string) (*dto.ThreadDepthResponse, error) {
	message, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}

	resp := &dto.ThreadDepthResponse{MessageID: message.ID, ThreadID: message.ThreadID}
	if message.ThreadID == nil {
		return resp, nil
	}

	depth, err := chat.ThreadDepth(*message.ThreadID, func(id string) (*string, error) {
		return s.messageRepo.FindThreadParent(db, id)
	})
	if err != nil {
		return nil, handleChatError(err)
	}
	resp.Depth = depth
	return resp, nil
}
