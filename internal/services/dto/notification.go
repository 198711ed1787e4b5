package dto

import (
	"encoding/json"
	"time"

	"messaging_backend/internal/models"
)

// ---------------- Requests ----------------

type CreateNotificationRequest struct {
	RecipientID       string                 `json:"recipient_id" validate:"required"`
	SenderID          *string                `json:"sender_id,omitempty"`
	Title             string                 `json:"title" validate:"required,max=255"`
	Message           string                 `json:"message" validate:"required,max=5000"`
	CategoryID        *string                `json:"category_id,omitempty"`
	CategoryName      string                 `json:"category,omitempty" validate:"omitempty,max=100"`
	Priority          string                 `json:"priority" validate:"omitempty,is-notification-priority"`
	RelatedObjectType string                 `json:"related_object_type" validate:"omitempty,max=100"`
	RelatedObjectID   string                 `json:"related_object_id" validate:"omitempty,max=100"`
	ActionURL         string                 `json:"action_url" validate:"omitempty,max=2048"`
	ImageURL          string                 `json:"image_url" validate:"omitempty,url"`
	ExtraData         map[string]interface{} `json:"extra_data,omitempty"`
	ChannelIDs        []string               `json:"channel_ids" validate:"omitempty,dive,required"`
	ScheduledAt       *time.Time             `json:"scheduled_at,omitempty"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	DeviceToken       string                 `json:"device_token" validate:"omitempty,max=500"`
	Platform          string                 `json:"platform" validate:"omitempty,is-push-platform"`
}

type NotificationCriteria struct {
	Status         string `form:"status" validate:"omitempty,oneof=pending sent delivered failed read archived"`
	CategoryID     string `form:"category_id"`
	UnreadOnly     bool   `form:"unread_only"`
	IncludeExpired bool   `form:"include_expired"`
	Pagination
}

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=1000"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Icon        string `json:"icon" validate:"omitempty,max=50"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type ChannelConfigRequest struct {
	URL        string            `json:"url" validate:"omitempty,url"`
	Method     string            `json:"method" validate:"omitempty,oneof=POST PUT PATCH"`
	Headers    map[string]string `json:"headers,omitempty"`
	MaxRetries int               `json:"max_retries" validate:"omitempty,min=1,max=10"`
	FromEmail  string            `json:"from_email" validate:"omitempty,email"`
}

type CreateChannelRequest struct {
	Name        string                `json:"name" validate:"required,max=100"`
	ChannelType string                `json:"channel_type" validate:"required,is-channel-type"`
	IsActive    *bool                 `json:"is_active,omitempty"`
	Config      *ChannelConfigRequest `json:"config,omitempty"`
}

type UpdatePreferenceRequest struct {
	CategoryID        string     `json:"category_id" validate:"required"`
	EmailEnabled      *bool      `json:"email_enabled,omitempty"`
	PushEnabled       *bool      `json:"push_enabled,omitempty"`
	SMSEnabled        *bool      `json:"sms_enabled,omitempty"`
	Frequency         string     `json:"frequency" validate:"omitempty,is-frequency"`
	QuietHoursEnabled *bool      `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart   *string    `json:"quiet_hours_start,omitempty" validate:"omitempty,is-clock"`
	QuietHoursEnd     *string    `json:"quiet_hours_end,omitempty" validate:"omitempty,is-clock"`
	IsEnabled         *bool      `json:"is_enabled,omitempty"`
	DoNotDisturbUntil *time.Time `json:"do_not_disturb_until,omitempty"`
}

type EmailEventRequest struct {
	Event      string `json:"event" validate:"required,oneof=delivered opened clicked bounced unsubscribed"`
	BounceType string `json:"bounce_type" validate:"omitempty,max=50"`
}

type PushEventRequest struct {
	Event string `json:"event" validate:"required,oneof=delivered clicked failed"`
	Error string `json:"error" validate:"omitempty,max=1000"`
}

// ---------------- Responses ----------------

type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

type ChannelResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	ChannelType string               `json:"channel_type"`
	IsActive    bool                 `json:"is_active"`
	Config      models.ChannelConfig `json:"config"`
}

type DeliveryResponse struct {
	Email   *models.EmailNotification   `json:"email,omitempty"`
	Push    *models.PushNotification    `json:"push,omitempty"`
	Webhook *models.WebhookNotification `json:"webhook,omitempty"`
}

type NotificationResponse struct {
	ID                string                 `json:"id"`
	RecipientID       string                 `json:"recipient_id"`
	SenderID          *string                `json:"sender_id,omitempty"`
	Title             string                 `json:"title"`
	Message           string                 `json:"message"`
	Category          *CategoryResponse      `json:"category,omitempty"`
	Priority          string                 `json:"priority"`
	RelatedObjectType string                 `json:"related_object_type,omitempty"`
	RelatedObjectID   string                 `json:"related_object_id,omitempty"`
	ActionURL         string                 `json:"action_url,omitempty"`
	ImageURL          string                 `json:"image_url,omitempty"`
	ExtraData         map[string]interface{} `json:"extra_data,omitempty"`
	Status            string                 `json:"status"`
	ScheduledAt       *time.Time             `json:"scheduled_at,omitempty"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	SentAt            *time.Time             `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time             `json:"delivered_at,omitempty"`
	IsRead            bool                   `json:"is_read"`
	ReadAt            *time.Time             `json:"read_at,omitempty"`
	IsClicked         bool                   `json:"is_clicked"`
	ClickedAt         *time.Time             `json:"clicked_at,omitempty"`
	IsDismissed       bool                   `json:"is_dismissed"`
	DismissedAt       *time.Time             `json:"dismissed_at,omitempty"`
	Deliveries        *DeliveryResponse      `json:"deliveries,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Total         int64                   `json:"total"`
	UnreadCount   int64                   `json:"unread_count"`
	Page          int                     `json:"page"`
	PageSize      int                     `json:"page_size"`
}

type PreferenceResponse struct {
	CategoryID        string     `json:"category_id"`
	CategoryName      string     `json:"category_name,omitempty"`
	EmailEnabled      bool       `json:"email_enabled"`
	PushEnabled       bool       `json:"push_enabled"`
	SMSEnabled        bool       `json:"sms_enabled"`
	Frequency         string     `json:"frequency"`
	QuietHoursEnabled bool       `json:"quiet_hours_enabled"`
	QuietHoursStart   string     `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     string     `json:"quiet_hours_end,omitempty"`
	IsEnabled         bool       `json:"is_enabled"`
	DoNotDisturbUntil *time.Time `json:"do_not_disturb_until,omitempty"`
}

// ---------------- Mappers ----------------

func NewCategoryResponse(c *models.NotificationCategory) *CategoryResponse {
	if c == nil {
		return nil
	}
	return &CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Color:       c.Color,
		Icon:        c.Icon,
		SortOrder:   c.SortOrder,
		IsActive:    c.IsActive,
	}
}

func NewPreferenceResponse(p *models.NotificationPreference) *PreferenceResponse {
	resp := &PreferenceResponse{
		CategoryID:        p.CategoryID,
		EmailEnabled:      p.EmailEnabled,
		PushEnabled:       p.PushEnabled,
		SMSEnabled:        p.SMSEnabled,
		Frequency:         string(p.Frequency),
		QuietHoursEnabled: p.QuietHoursEnabled,
		QuietHoursStart:   p.QuietHoursStart,
		QuietHoursEnd:     p.QuietHoursEnd,
		IsEnabled:         p.IsEnabled,
		DoNotDisturbUntil: p.DoNotDisturbUntil,
	}
	if p.Category != nil {
		resp.CategoryName = p.Category.Name
	}
	return resp
}

func NewNotificationResponse(n *models.Notification) *NotificationResponse {
	resp := &NotificationResponse{
		ID:                n.ID,
		RecipientID:       n.RecipientID,
		SenderID:          n.SenderID,
		Title:             n.Title,
		Message:           n.Message,
		Category:          NewCategoryResponse(n.Category),
		Priority:          string(n.Priority),
		RelatedObjectType: n.RelatedObjectType,
		RelatedObjectID:   n.RelatedObjectID,
		ActionURL:         n.ActionURL,
		ImageURL:          n.ImageURL,
		Status:            string(n.Status),
		ScheduledAt:       n.ScheduledAt,
		ExpiresAt:         n.ExpiresAt,
		SentAt:            n.SentAt,
		DeliveredAt:       n.DeliveredAt,
		IsRead:            n.IsRead,
		ReadAt:            n.ReadAt,
		IsClicked:         n.IsClicked,
		ClickedAt:         n.ClickedAt,
		IsDismissed:       n.IsDismissed,
		DismissedAt:       n.DismissedAt,
		CreatedAt:         n.CreatedAt,
	}
	if len(n.ExtraData) > 0 {
		// Malformed extra data is dropped from the response rather than failing it.
		_ = json.Unmarshal(n.ExtraData, &resp.ExtraData)
	}
	return resp
}

func NewChannelResponse(c *models.NotificationChannel) *ChannelResponse {
	resp := &ChannelResponse{
		ID:          c.ID,
		Name:        c.Name,
		ChannelType: string(c.ChannelType),
		IsActive:    c.IsActive,
	}
	if len(c.Config) > 0 {
		_ = json.Unmarshal(c.Config, &resp.Config)
	}
	return resp
}
