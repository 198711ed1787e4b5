package repositories

import (
	"errors"
	"time"

	"messaging_backend/internal/models/chat"

	"gorm.io/gorm"
)

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

type MessageRepository interface {
	// Message operations
	CreateMessage(db *gorm.DB, message *chat.Message) error
	FindMessageByID(db *gorm.DB, id string) (*chat.Message, error)
	FindMessages(db *gorm.DB, conversationID string, criteria MessageCriteria) ([]chat.Message, int64, error)
	FindUnreadForUser(db *gorm.DB, userID string, now time.Time, limit int) ([]chat.Message, error)
	UpdateMessage(db *gorm.DB, message *chat.Message) error
	CountUnread(db *gorm.DB, conversationID, userID string) (int64, error)
	MarkConversationRead(db *gorm.DB, conversationID, userID string, at time.Time) (int64, error)

	// Thread operations
	CreateThread(db *gorm.DB, thread *chat.MessageThread) error
	FindThreadByID(db *gorm.DB, id string) (*chat.MessageThread, error)
	FindThreadParent(db *gorm.DB, id string) (*string, error)

	// Attachment operations
	CreateAttachment(db *gorm.DB, attachment *chat.MessageAttachment) error
	FindAttachmentByID(db *gorm.DB, id string) (*chat.MessageAttachment, error)
	FindAttachmentsByMessage(db *gorm.DB, messageID string) ([]chat.MessageAttachment, error)
	UpdateAttachment(db *gorm.DB, attachment *chat.MessageAttachment) error
}

type MessageRepositoryImpl struct{}

type MessageCriteria struct {
	ThreadID       string
	Types          []chat.MessageType
	Before         *time.Time
	After          *time.Time
	IncludeExpired bool
	Now            time.Time
	Page           int
	PageSize       int
}

func NewMessageRepository() MessageRepository {
	return &MessageRepositoryImpl{}
}

// ============================================
// Message operations
// ============================================

func (r *MessageRepositoryImpl) CreateMessage(db *gorm.DB, message *chat.Message) error {
	return db.Omit("Thread", "Attachments").Create(message).Error
}

func (r *MessageRepositoryImpl) FindMessageByID(db *gorm.DB, id string) (*chat.Message, error) {
	var message chat.Message
	err := db.Preload("Attachments", "is_deleted = ?", false).First(&message, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepositoryImpl) FindMessages(db *gorm.DB, conversationID string, criteria MessageCriteria) ([]chat.Message, int64, error) {
	var messages []chat.Message
	query := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)

	if criteria.ThreadID != "" {
		query = query.Where("thread_id = ?", criteria.ThreadID)
	}
	if len(criteria.Types) > 0 {
		query = query.Where("message_type IN ?", criteria.Types)
	}
	if criteria.Before != nil {
		query = query.Where("created_at < ?", *criteria.Before)
	}
	if criteria.After != nil {
		query = query.Where("created_at > ?", *criteria.After)
	}
	if !criteria.IncludeExpired {
		query = query.Where("expires_at IS NULL OR expires_at > ?", criteria.Now)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(criteria.Page, criteria.PageSize)
	err := query.Preload("Attachments", "is_deleted = ?", false).
		Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&messages).Error
	return messages, total, err
}

// FindUnreadForUser returns unread messages from other senders across every
// conversation the user belongs to.
func (r *MessageRepositoryImpl) FindUnreadForUser(db *gorm.DB, userID string, now time.Time, limit int) ([]chat.Message, error) {
	var messages []chat.Message
	if limit <= 0 {
		limit = 100
	}
	err := db.Model(&chat.Message{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id AND cp.user_id = ?", userID).
		Where("messages.sender_id <> ? AND messages.is_read = ? AND messages.is_deleted = ?", userID, false, false).
		Where("messages.expires_at IS NULL OR messages.expires_at > ?", now).
		Order("messages.created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepositoryImpl) UpdateMessage(db *gorm.DB, message *chat.Message) error {
	result := db.Model(message).Select(
		"content", "is_edited", "edited_at", "original_content",
		"is_read", "read_at", "is_delivered", "delivered_at",
		"is_deleted", "deleted_at", "deleted_by",
		"priority", "is_important", "is_urgent", "updated_at",
	).Updates(message)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepositoryImpl) CountUnread(db *gorm.DB, conversationID, userID string) (int64, error) {
	var count int64
	err := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ? AND is_deleted = ?",
			conversationID, userID, false, false).
		Count(&count).Error
	return count, err
}

func (r *MessageRepositoryImpl) MarkConversationRead(db *gorm.DB, conversationID, userID string, at time.Time) (int64, error) {
	result := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ? AND is_deleted = ?",
			conversationID, userID, false, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

// ============================================
// Thread operations
// ============================================

func (r *MessageRepositoryImpl) CreateThread(db *gorm.DB, thread *chat.MessageThread) error {
	return db.Create(thread).Error
}

func (r *MessageRepositoryImpl) FindThreadByID(db *gorm.DB, id string) (*chat.MessageThread, error) {
	var thread chat.MessageThread
	if err := db.First(&thread, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return &thread, nil
}

func (r *MessageRepositoryImpl) FindThreadParent(db *gorm.DB, id string) (*string, error) {
	thread, err := r.FindThreadByID(db, id)
	if err != nil {
		return nil, err
	}
	return thread.ParentThreadID, nil
}

// ============================================
// Attachment operations
// ============================================

func (r *MessageRepositoryImpl) CreateAttachment(db *gorm.DB, attachment *chat.MessageAttachment) error {
	return db.Create(attachment).Error
}

func (r *MessageRepositoryImpl) FindAttachmentByID(db *gorm.DB, id string) (*chat.MessageAttachment, error) {
	var attachment chat.MessageAttachment
	err := db.Where("id = ? AND is_deleted = ?", id, false).First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

func (r *MessageRepositoryImpl) FindAttachmentsByMessage(db *gorm.DB, messageID string) ([]chat.MessageAttachment, error) {
	var attachments []chat.MessageAttachment
	err := db.Where("message_id = ? AND is_deleted = ?", messageID, false).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

func (r *MessageRepositoryImpl) UpdateAttachment(db *gorm.DB, attachment *chat.MessageAttachment) error {
	result := db.Model(attachment).Updates(map[string]interface{}{
		"is_deleted":     attachment.IsDeleted,
		"deleted_at":     attachment.DeletedAt,
		"width":          attachment.Width,
		"height":         attachment.Height,
		"thumbnail_path": attachment.ThumbnailPath,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}
