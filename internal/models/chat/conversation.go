package chat

import (
	"fmt"
	"time"

	"messaging_backend/internal/models"
)

type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationChannel ConversationType = "channel"
)

func (t ConversationType) IsValid() bool {
	switch t {
	case ConversationDirect, ConversationGroup, ConversationChannel:
		return true
	}
	return false
}

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationMuted    ConversationStatus = "muted"
	ConversationClosed   ConversationStatus = "closed"
)

// DirectParticipants is both the capacity and the floor of a direct conversation.
const DirectParticipants = 2

type Conversation struct {
	models.BaseModel
	Type        ConversationType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Name        string             `gorm:"size:255" json:"name"`
	Description string             `gorm:"type:text" json:"description"`
	Status      ConversationStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	IsActive    bool               `gorm:"index" json:"is_active"`
	IsPrivate   bool               `json:"is_private"`

	AllowFileSharing     bool `json:"allow_file_sharing"`
	AllowVoiceMessages   bool `json:"allow_voice_messages"`
	MessageRetentionDays *int `json:"message_retention_days,omitempty"`
	MaxParticipants      int  `gorm:"not null" json:"max_participants"`

	CreatedBy     string     `gorm:"type:varchar(36);not null;index" json:"created_by"`
	LastMessageID *string    `gorm:"type:varchar(36)" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Limits carries the configured capacities for the non-direct types.
type Limits struct {
	GroupMaxParticipants   int
	ChannelMaxParticipants int
}

func (l Limits) MaxParticipants(t ConversationType) int {
	switch t {
	case ConversationGroup:
		return l.GroupMaxParticipants
	case ConversationChannel:
		return l.ChannelMaxParticipants
	}
	return DirectParticipants
}

// NewConversation returns an active conversation with default settings.
func NewConversation(t ConversationType, creatorID string, limits Limits) *Conversation {
	return &Conversation{
		Type:               t,
		Status:             ConversationActive,
		IsActive:           true,
		IsPrivate:          true,
		AllowFileSharing:   true,
		AllowVoiceMessages: true,
		MaxParticipants:    limits.MaxParticipants(t),
		CreatedBy:          creatorID,
	}
}

func (c *Conversation) IsDirect() bool {
	return c.Type == ConversationDirect
}

func (c *Conversation) IsClosed() bool {
	return c.Status == ConversationClosed
}

// CanRemoveParticipant checks the participant floor. Direct conversations never
// drop below two members; other types only when floorAllTypes is set.
func (c *Conversation) CanRemoveParticipant(currentCount int, floorAllTypes bool) bool {
	if c.IsDirect() || floorAllTypes {
		return currentCount > DirectParticipants
	}
	return true
}

func (c *Conversation) HasCapacity(currentCount int) bool {
	return currentCount < c.MaxParticipants
}

func (c *Conversation) Archive() error {
	if c.IsClosed() {
		return transitionError(c.Status, ConversationArchived)
	}
	c.Status = ConversationArchived
	c.IsActive = false
	return nil
}

func (c *Conversation) Close() {
	c.Status = ConversationClosed
	c.IsActive = false
}

func (c *Conversation) Activate() error {
	switch c.Status {
	case ConversationArchived, ConversationMuted, ConversationActive:
		c.Status = ConversationActive
		c.IsActive = true
		return nil
	}
	return transitionError(c.Status, ConversationActive)
}

func (c *Conversation) Mute() error {
	switch c.Status {
	case ConversationActive, ConversationMuted:
		c.Status = ConversationMuted
		c.IsActive = true
		return nil
	}
	return transitionError(c.Status, ConversationMuted)
}

// SetLastMessage is only called from the message creation path.
func (c *Conversation) SetLastMessage(messageID string, at time.Time) {
	c.LastMessageID = &messageID
	c.LastMessageAt = &at
}

func transitionError(from, to ConversationStatus) error {
	return fmt.Errorf("%w: conversation %s -> %s", models.ErrInvalidTransition, from, to)
}
