package repositories

import (
	"errors"
	"time"

	"messaging_backend/internal/models/chat"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantExists    = errors.New("participant already exists")
)

// ConversationRepository covers conversations and their memberships.
type ConversationRepository interface {
	// Conversation operations
	CreateConversation(db *gorm.DB, conversation *chat.Conversation) error
	FindConversationByID(db *gorm.DB, id string) (*chat.Conversation, error)
	FindConversationForUpdate(db *gorm.DB, id string) (*chat.Conversation, error)
	FindDirectBetween(db *gorm.DB, userA, userB string) (*chat.Conversation, error)
	FindConversationsForUser(db *gorm.DB, userID string, criteria ConversationCriteria) ([]chat.Conversation, int64, error)
	UpdateConversation(db *gorm.DB, conversation *chat.Conversation) error
	UpdateLastMessage(db *gorm.DB, conversationID, messageID string, at time.Time) error

	// Participant operations
	AddParticipant(db *gorm.DB, participant *chat.ConversationParticipant) error
	FindParticipant(db *gorm.DB, conversationID, userID string) (*chat.ConversationParticipant, error)
	FindParticipants(db *gorm.DB, conversationID string) ([]chat.ConversationParticipant, error)
	FindParticipantUserIDs(db *gorm.DB, conversationID string) ([]string, error)
	CountParticipants(db *gorm.DB, conversationID string) (int64, error)
	UpdateParticipant(db *gorm.DB, participant *chat.ConversationParticipant) error
	RemoveParticipant(db *gorm.DB, conversationID, userID string) error
	IsParticipant(db *gorm.DB, conversationID, userID string) (bool, error)
}

type ConversationRepositoryImpl struct{}

type ConversationCriteria struct {
	Type          chat.ConversationType
	Status        chat.ConversationStatus
	IncludeClosed bool
	Page          int
	PageSize      int
}

func NewConversationRepository() ConversationRepository {
	return &ConversationRepositoryImpl{}
}

// ============================================
// Conversation operations
// ============================================

func (r *ConversationRepositoryImpl) CreateConversation(db *gorm.DB, conversation *chat.Conversation) error {
	return db.Omit("Participants").Create(conversation).Error
}

func (r *ConversationRepositoryImpl) FindConversationByID(db *gorm.DB, id string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	if err := db.First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

// FindConversationForUpdate row-locks the conversation for the rest of the
// transaction. Drivers without FOR UPDATE support ignore the clause.
func (r *ConversationRepositoryImpl) FindConversationForUpdate(db *gorm.DB, id string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conversation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *ConversationRepositoryImpl) FindDirectBetween(db *gorm.DB, userA, userB string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	err := db.Model(&chat.Conversation{}).
		Joins("JOIN conversation_participants p1 ON p1.conversation_id = conversations.id AND p1.user_id = ?", userA).
		Joins("JOIN conversation_participants p2 ON p2.conversation_id = conversations.id AND p2.user_id = ?", userB).
		Where("conversations.type = ?", chat.ConversationDirect).
		Order("conversations.created_at ASC").
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *ConversationRepositoryImpl) FindConversationsForUser(db *gorm.DB, userID string, criteria ConversationCriteria) ([]chat.Conversation, int64, error) {
	var conversations []chat.Conversation
	query := db.Model(&chat.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID)

	if criteria.Type != "" {
		query = query.Where("conversations.type = ?", criteria.Type)
	}
	if criteria.Status != "" {
		query = query.Where("conversations.status = ?", criteria.Status)
	} else if !criteria.IncludeClosed {
		query = query.Where("conversations.status <> ?", chat.ConversationClosed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(criteria.Page, criteria.PageSize)
	// NULL last_message_at (no messages yet) sorts after active conversations.
	err := query.
		Order("CASE WHEN conversations.last_message_at IS NULL THEN 1 ELSE 0 END").
		Order("conversations.last_message_at DESC").
		Order("conversations.created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&conversations).Error
	return conversations, total, err
}

func (r *ConversationRepositoryImpl) UpdateConversation(db *gorm.DB, conversation *chat.Conversation) error {
	result := db.Model(conversation).Select(
		"name", "description", "status", "is_active", "is_private",
		"allow_file_sharing", "allow_voice_messages", "message_retention_days",
		"max_participants", "updated_at",
	).Updates(conversation)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) UpdateLastMessage(db *gorm.DB, conversationID, messageID string, at time.Time) error {
	result := db.Model(&chat.Conversation{}).Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ============================================
// Participant operations
// ============================================

func (r *ConversationRepositoryImpl) AddParticipant(db *gorm.DB, participant *chat.ConversationParticipant) error {
	if err := db.Omit("User").Create(participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrParticipantExists
		}
		return err
	}
	return nil
}

func (r *ConversationRepositoryImpl) FindParticipant(db *gorm.DB, conversationID, userID string) (*chat.ConversationParticipant, error) {
	var participant chat.ConversationParticipant
	err := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return &participant, nil
}

func (r *ConversationRepositoryImpl) FindParticipants(db *gorm.DB, conversationID string) ([]chat.ConversationParticipant, error) {
	var participants []chat.ConversationParticipant
	err := db.Preload("User").
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

func (r *ConversationRepositoryImpl) FindParticipantUserIDs(db *gorm.DB, conversationID string) ([]string, error) {
	var ids []string
	err := db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *ConversationRepositoryImpl) CountParticipants(db *gorm.DB, conversationID string) (int64, error) {
	var count int64
	err := db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

func (r *ConversationRepositoryImpl) UpdateParticipant(db *gorm.DB, participant *chat.ConversationParticipant) error {
	result := db.Model(participant).Updates(map[string]interface{}{
		"is_admin":            participant.IsAdmin,
		"last_read_at":        participant.LastReadAt,
		"notifications_muted": participant.NotificationsMuted,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) RemoveParticipant(db *gorm.DB, conversationID, userID string) error {
	result := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&chat.ConversationParticipant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) IsParticipant(db *gorm.DB, conversationID, userID string) (bool, error) {
	var count int64
	err := db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}
