package services

import (
	"errors"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// AccessService loads the records capability checks look at. Handlers call
// one of the Resolve methods and pass the result to auth.Require.
type AccessService interface {
	ResolveUser(db *gorm.DB, userID string) (*auth.Access, error)
	ResolveConversation(db *gorm.DB, userID, conversationID string) (*auth.Access, error)
	ResolveMessage(db *gorm.DB, userID, messageID string) (*auth.Access, error)
	ResolveAttachment(db *gorm.DB, userID, attachmentID string) (*auth.Access, *chat.MessageAttachment, error)
}

type accessService struct {
	userRepo         repositories.UserRepository
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
}

func NewAccessService(
	userRepo repositories.UserRepository,
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
) AccessService {
	return &accessService{
		userRepo:         userRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
	}
}

func (s *accessService) ResolveUser(db *gorm.DB, userID string) (*auth.Access, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewUnauthorizedError("Account no longer exists")
		}
		return nil, apperrors.InternalError(err)
	}
	return &auth.Access{UserID: userID, User: user}, nil
}

// ResolveConversation leaves Participant nil when the user is not a member.
func (s *accessService) ResolveConversation(db *gorm.DB, userID, conversationID string) (*auth.Access, error) {
	access, err := s.ResolveUser(db, userID)
	if err != nil {
		return nil, err
	}
	if err := s.attachConversation(db, access, conversationID); err != nil {
		return nil, err
	}
	return access, nil
}

func (s *accessService) ResolveMessage(db *gorm.DB, userID, messageID string) (*auth.Access, error) {
	access, err := s.ResolveUser(db, userID)
	if err != nil {
		return nil, err
	}
	message, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	access.Message = message
	if err := s.attachConversation(db, access, message.ConversationID); err != nil {
		return nil, err
	}
	return access, nil
}

func (s *accessService) ResolveAttachment(db *gorm.DB, userID, attachmentID string) (*auth.Access, *chat.MessageAttachment, error) {
	attachment, err := s.messageRepo.FindAttachmentByID(db, attachmentID)
	if err != nil {
		return nil, nil, handleChatError(err)
	}
	access, err := s.ResolveMessage(db, userID, attachment.MessageID)
	if err != nil {
		return nil, nil, err
	}
	return access, attachment, nil
}

func (s *accessService) attachConversation(db *gorm.DB, access *auth.Access, conversationID string) error {
	conversation, err := s.conversationRepo.FindConversationByID(db, conversationID)
	if err != nil {
		return handleChatError(err)
	}
	access.Conversation = conversation

	participant, err := s.conversationRepo.FindParticipant(db, conversationID, access.UserID)
	switch {
	case err == nil:
		access.Participant = participant
	case errors.Is(err, repositories.ErrParticipantNotFound):
	default:
		return apperrors.InternalError(err)
	}
	return nil
}
