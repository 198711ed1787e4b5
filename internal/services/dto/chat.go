package dto

import (
	"time"

	"messaging_backend/internal/models/chat"
)

// ---------------- Conversation requests ----------------

type CreateConversationRequest struct {
	Type                 string   `json:"type" validate:"required,is-conversation-type"`
	Name                 string   `json:"name" validate:"omitempty,max=255"`
	Description          string   `json:"description" validate:"omitempty,max=2000"`
	ParticipantIDs       []string `json:"participant_ids" validate:"omitempty,dive,required"`
	IsPrivate            *bool    `json:"is_private,omitempty"`
	AllowFileSharing     *bool    `json:"allow_file_sharing,omitempty"`
	AllowVoiceMessages   *bool    `json:"allow_voice_messages,omitempty"`
	MaxParticipants      *int     `json:"max_participants,omitempty" validate:"omitempty,min=2"`
	MessageRetentionDays *int     `json:"message_retention_days,omitempty" validate:"omitempty,min=1"`
}

type CreateDirectRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type UpdateConversationRequest struct {
	Name                 *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description          *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	IsPrivate            *bool   `json:"is_private,omitempty"`
	AllowFileSharing     *bool   `json:"allow_file_sharing,omitempty"`
	AllowVoiceMessages   *bool   `json:"allow_voice_messages,omitempty"`
	MaxParticipants      *int    `json:"max_participants,omitempty" validate:"omitempty,min=2"`
	MessageRetentionDays *int    `json:"message_retention_days,omitempty" validate:"omitempty,min=1"`
}

type AddParticipantRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	IsAdmin bool   `json:"is_admin"`
}

type SetParticipantAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

type ConversationCriteria struct {
	Type          string `form:"type" validate:"omitempty,is-conversation-type"`
	Status        string `form:"status" validate:"omitempty,oneof=active archived muted closed"`
	IncludeClosed bool   `form:"include_closed"`
	Pagination
}

// ---------------- Message requests ----------------

type CreateMessageRequest struct {
	ConversationID string     `json:"conversation_id" validate:"required"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	ThreadID       *string    `json:"thread_id,omitempty"`
	ReplyToID      *string    `json:"reply_to_id,omitempty"`
	RecipientID    *string    `json:"recipient_id,omitempty"`
	Priority       int        `json:"priority" validate:"min=0,max=2"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type ReplyRequest struct {
	Content string `json:"content"`
}

type ForwardRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type CreateThreadRequest struct {
	ConversationID string  `json:"-"`
	ParentThreadID *string `json:"parent_thread_id,omitempty"`
	RootMessageID  *string `json:"root_message_id,omitempty"`
	Subject        string  `json:"subject" validate:"omitempty,max=255"`
}

type MessageCriteria struct {
	ThreadID       string     `form:"thread_id"`
	Types          []string   `form:"type" validate:"omitempty,dive,is-message-type"`
	Before         *time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
	After          *time.Time `form:"after" time_format:"2006-01-02T15:04:05Z07:00"`
	IncludeExpired bool       `form:"include_expired"`
	Pagination
}

// ---------------- Responses ----------------

type ParticipantResponse struct {
	UserID             string     `json:"user_id"`
	DisplayName        string     `json:"display_name,omitempty"`
	IsAdmin            bool       `json:"is_admin"`
	JoinedAt           time.Time  `json:"joined_at"`
	LastReadAt         *time.Time `json:"last_read_at,omitempty"`
	NotificationsMuted bool       `json:"notifications_muted"`
	IsOnline           bool       `json:"is_online"`
}

type ConversationResponse struct {
	ID                   string                 `json:"id"`
	Type                 string                 `json:"type"`
	Name                 string                 `json:"name,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Status               string                 `json:"status"`
	IsActive             bool                   `json:"is_active"`
	IsPrivate            bool                   `json:"is_private"`
	AllowFileSharing     bool                   `json:"allow_file_sharing"`
	AllowVoiceMessages   bool                   `json:"allow_voice_messages"`
	MessageRetentionDays *int                   `json:"message_retention_days,omitempty"`
	MaxParticipants      int                    `json:"max_participants"`
	CreatedBy            string                 `json:"created_by"`
	LastMessageID        *string                `json:"last_message_id,omitempty"`
	LastMessageAt        *time.Time             `json:"last_message_at,omitempty"`
	ParticipantCount     int64                  `json:"participant_count"`
	UnreadCount          int64                  `json:"unread_count"`
	Participants         []*ParticipantResponse `json:"participants,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

type ConversationListResponse struct {
	Conversations []*ConversationResponse `json:"conversations"`
	Total         int64                   `json:"total"`
	Page          int                     `json:"page"`
	PageSize      int                     `json:"page_size"`
}

type AttachmentResponse struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	UploadedBy   string    `json:"uploaded_by"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	HumanSize    string    `json:"human_size"`
	MimeType     string    `json:"mime_type"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	HasThumbnail bool      `json:"has_thumbnail"`
	CreatedAt    time.Time `json:"created_at"`
}

type DownloadURLResponse struct {
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type MessageResponse struct {
	ID              string                `json:"id"`
	ConversationID  string                `json:"conversation_id"`
	ThreadID        *string               `json:"thread_id,omitempty"`
	ReplyToID       *string               `json:"reply_to_id,omitempty"`
	SenderID        string                `json:"sender_id"`
	RecipientID     *string               `json:"recipient_id,omitempty"`
	Content         string                `json:"content"`
	MessageType     string                `json:"message_type"`
	IsEdited        bool                  `json:"is_edited"`
	EditedAt        *time.Time            `json:"edited_at,omitempty"`
	OriginalContent string                `json:"original_content,omitempty"`
	IsRead          bool                  `json:"is_read"`
	ReadAt          *time.Time            `json:"read_at,omitempty"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	IsDeleted       bool                  `json:"is_deleted"`
	Priority        int                   `json:"priority"`
	IsImportant     bool                  `json:"is_important"`
	IsUrgent        bool                  `json:"is_urgent"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	Attachments     []*AttachmentResponse `json:"attachments"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

type ThreadResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ParentThreadID *string   `json:"parent_thread_id,omitempty"`
	RootMessageID  *string   `json:"root_message_id,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type ThreadDepthResponse struct {
	MessageID string  `json:"message_id"`
	ThreadID  *string `json:"thread_id,omitempty"`
	Depth     int     `json:"depth"`
}

// ---------------- Mappers ----------------

func NewAttachmentResponse(a *chat.MessageAttachment) *AttachmentResponse {
	return &AttachmentResponse{
		ID:           a.ID,
		MessageID:    a.MessageID,
		UploadedBy:   a.UploadedBy,
		Filename:     a.Filename,
		FileType:     string(a.FileType),
		FileSize:     a.FileSize,
		HumanSize:    a.HumanReadableSize(),
		MimeType:     a.MimeType,
		Width:        a.Width,
		Height:       a.Height,
		HasThumbnail: a.ThumbnailPath != nil && *a.ThumbnailPath != "",
		CreatedAt:    a.CreatedAt,
	}
}

// NewMessageResponse blanks the content of deleted messages.
func NewMessageResponse(m *chat.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		ThreadID:        m.ThreadID,
		ReplyToID:       m.ReplyToID,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Content:         m.Content,
		MessageType:     string(m.MessageType),
		IsEdited:        m.IsEdited,
		EditedAt:        m.EditedAt,
		OriginalContent: m.OriginalContent,
		IsRead:          m.IsRead,
		ReadAt:          m.ReadAt,
		IsDelivered:     m.IsDelivered,
		DeliveredAt:     m.DeliveredAt,
		IsDeleted:       m.IsDeleted,
		Priority:        m.Priority,
		IsImportant:     m.IsImportant,
		IsUrgent:        m.IsUrgent,
		ExpiresAt:       m.ExpiresAt,
		Attachments:     make([]*AttachmentResponse, 0, len(m.Attachments)),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.IsDeleted {
		resp.Content = ""
		resp.OriginalContent = ""
		return resp
	}
	for i := range m.Attachments {
		if !m.Attachments[i].IsDeleted {
			resp.Attachments = append(resp.Attachments, NewAttachmentResponse(&m.Attachments[i]))
		}
	}
	return resp
}

func NewThreadResponse(t *chat.MessageThread) *ThreadResponse {
	return &ThreadResponse{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		ParentThreadID: t.ParentThreadID,
		RootMessageID:  t.RootMessageID,
		Subject:        t.Subject,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
	}
}

func NewConversationResponse(c *chat.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:                   c.ID,
		Type:                 string(c.Type),
		Name:                 c.Name,
		Description:          c.Description,
		Status:               string(c.Status),
		IsActive:             c.IsActive,
		IsPrivate:            c.IsPrivate,
		AllowFileSharing:     c.AllowFileSharing,
		AllowVoiceMessages:   c.AllowVoiceMessages,
		MessageRetentionDays: c.MessageRetentionDays,
		MaxParticipants:      c.MaxParticipants,
		CreatedBy:            c.CreatedBy,
		LastMessageID:        c.LastMessageID,
		LastMessageAt:        c.LastMessageAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}
