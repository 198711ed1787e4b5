package chat

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"messaging_backend/internal/models"
)

const MaxMessageLength = 10000

var (
	ErrEmptyContent     = errors.New("message content cannot be empty")
	ErrContentTooLong   = errors.New("message content exceeds 10000 characters")
	ErrMessageIsDeleted = errors.New("message has been deleted")
	ErrSystemMessage    = errors.New("system messages cannot be edited")
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageAudio  MessageType = "audio"
	MessageVideo  MessageType = "video"
	MessageSystem MessageType = "system"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageAudio, MessageVideo, MessageSystem:
		return true
	}
	return false
}

// Message priorities.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
	PriorityUrgent = 2
)

type Message struct {
	models.BaseModel
	ConversationID string      `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	ThreadID       *string     `gorm:"type:varchar(36);index" json:"thread_id,omitempty"`
	ReplyToID      *string     `gorm:"type:varchar(36);index" json:"reply_to_id,omitempty"`
	SenderID       string      `gorm:"type:varchar(36);not null;index" json:"sender_id"`
	RecipientID    *string     `gorm:"type:varchar(36);index" json:"recipient_id,omitempty"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	MessageType    MessageType `gorm:"type:varchar(10);not null;default:'text';index" json:"message_type"`

	IsEdited        bool       `gorm:"default:false" json:"is_edited"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	OriginalContent string     `gorm:"type:text" json:"original_content,omitempty"`

	IsRead      bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	IsDelivered bool       `gorm:"default:false" json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `gorm:"type:varchar(36)" json:"deleted_by,omitempty"`

	Priority    int        `gorm:"default:0" json:"priority"`
	IsImportant bool       `gorm:"default:false" json:"is_important"`
	IsUrgent    bool       `gorm:"default:false" json:"is_urgent"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	Thread      *MessageThread      `gorm:"foreignKey:ThreadID" json:"-"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// NormalizeContent trims surrounding whitespace and enforces the length bounds.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

func (m *Message) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

func (m *Message) MarkAsRead(now time.Time) bool {
	if m.IsRead {
		return false
	}
	m.IsRead = true
	m.ReadAt = &now
	return true
}

func (m *Message) MarkAsUnread() bool {
	if !m.IsRead {
		return false
	}
	m.IsRead = false
	m.ReadAt = nil
	return true
}

func (m *Message) MarkAsDelivered(now time.Time) bool {
	if m.IsDelivered {
		return false
	}
	m.IsDelivered = true
	m.DeliveredAt = &now
	return true
}

// EditContent keeps the content from before the first edit in OriginalContent.
func (m *Message) EditContent(content string, now time.Time) error {
	if m.IsDeleted {
		return ErrMessageIsDeleted
	}
	if m.MessageType == MessageSystem {
		return ErrSystemMessage
	}
	normalized, err := NormalizeContent(content)
	if err != nil {
		return err
	}
	if !m.IsEdited {
		m.OriginalContent = m.Content
	}
	m.Content = normalized
	m.IsEdited = true
	m.EditedAt = &now
	return nil
}

// SoftDelete returns false when the message was already deleted.
func (m *Message) SoftDelete(actorID string, now time.Time) bool {
	if m.IsDeleted {
		return false
	}
	m.IsDeleted = true
	m.DeletedAt = &now
	m.DeletedBy = &actorID
	return true
}

// SetPriority keeps the importance flags in line with the numeric priority.
func (m *Message) SetPriority(priority int) {
	if priority < PriorityNormal {
		priority = PriorityNormal
	}
	if priority > PriorityUrgent {
		priority = PriorityUrgent
	}
	m.Priority = priority
	m.IsImportant = priority >= PriorityHigh
	m.IsUrgent = priority == PriorityUrgent
}
