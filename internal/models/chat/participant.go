package chat

import (
	"time"

	"messaging_backend/internal/models"
)

type ConversationParticipant struct {
	models.BaseModel
	ConversationID     string       `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_conversation_user" json:"conversation_id"`
	UserID             string       `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_conversation_user;index" json:"user_id"`
	User               *models.User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JoinedAt           time.Time    `gorm:"not null" json:"joined_at"`
	IsAdmin            bool         `gorm:"default:false" json:"is_admin"`
	LastReadAt         *time.Time   `json:"last_read_at,omitempty"`
	NotificationsMuted bool         `gorm:"default:false" json:"notifications_muted"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

func (p *ConversationParticipant) MarkRead(now time.Time) {
	p.LastReadAt = &now
}
