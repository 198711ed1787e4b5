package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ErrInvalidTransition is returned by state machine methods when the current
// status does not allow the requested change.
var ErrInvalidTransition = errors.New("invalid status transition")

func transitionError(entity string, from, to any) error {
	return fmt.Errorf("%w: %s %v -> %v", ErrInvalidTransition, entity, from, to)
}

type NotificationCategory struct {
	BaseModel
	Name        string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Color       string `gorm:"size:7" json:"color"`
	Icon        string `gorm:"size:50" json:"icon"`
	SortOrder   int    `gorm:"default:0" json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

type NotificationChannel struct {
	BaseModel
	Name        string         `gorm:"uniqueIndex;size:100;not null" json:"name"`
	ChannelType ChannelType    `gorm:"type:varchar(20);not null" json:"channel_type"`
	IsActive    bool           `json:"is_active"`
	Config      datatypes.JSON `json:"config,omitempty"`
}

// ChannelConfig is the decoded form of NotificationChannel.Config.
type ChannelConfig struct {
	URL        string            `json:"url,omitempty"`
	Method     string            `json:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	FromEmail  string            `json:"from_email,omitempty"`
}

type Notification struct {
	BaseModel
	RecipientID string                `gorm:"type:varchar(36);not null;index" json:"recipient_id"`
	SenderID    *string               `gorm:"type:varchar(36)" json:"sender_id,omitempty"`
	Title       string                `gorm:"size:255;not null" json:"title"`
	Message     string                `gorm:"type:text;not null" json:"message"`
	CategoryID  *string               `gorm:"type:varchar(36);index" json:"category_id,omitempty"`
	Category    *NotificationCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Priority    NotificationPriority  `gorm:"type:varchar(10);not null;default:'normal'" json:"priority"`

	RelatedObjectType string         `gorm:"size:100" json:"related_object_type,omitempty"`
	RelatedObjectID   string         `gorm:"size:100" json:"related_object_id,omitempty"`
	ActionURL         string         `json:"action_url,omitempty"`
	ImageURL          string         `json:"image_url,omitempty"`
	ExtraData         datatypes.JSON `json:"extra_data,omitempty"`

	Status   NotificationStatus    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Channels []NotificationChannel `gorm:"many2many:notification_channel_links" json:"channels,omitempty"`

	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	IsRead      bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	IsClicked   bool       `gorm:"default:false" json:"is_clicked"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	IsDismissed bool       `gorm:"default:false" json:"is_dismissed"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// IsScheduled is a pending notification waiting for a future send time.
func (n *Notification) IsScheduled(now time.Time) bool {
	return n.Status == NotificationPending && n.ScheduledAt != nil && n.ScheduledAt.After(now)
}

func (n *Notification) ShouldDeliver(now time.Time) bool {
	if n.IsExpired(now) {
		return false
	}
	if n.Status == NotificationArchived || n.IsDismissed {
		return false
	}
	if n.Status != NotificationPending {
		return false
	}
	return n.ScheduledAt == nil || !n.ScheduledAt.After(now)
}

func (n *Notification) MarkAsSent(now time.Time) error {
	if n.Status != NotificationPending {
		return transitionError("notification", n.Status, NotificationSent)
	}
	n.Status = NotificationSent
	n.SentAt = &now
	return nil
}

func (n *Notification) MarkAsDelivered(now time.Time) error {
	if n.Status != NotificationSent {
		return transitionError("notification", n.Status, NotificationDelivered)
	}
	n.Status = NotificationDelivered
	n.DeliveredAt = &now
	return nil
}

func (n *Notification) MarkAsFailed() error {
	if n.Status != NotificationSent {
		return transitionError("notification", n.Status, NotificationFailed)
	}
	n.Status = NotificationFailed
	return nil
}

// MarkAsRead keeps the first read_at. Archived notifications stay archived.
func (n *Notification) MarkAsRead(now time.Time) error {
	if n.Status == NotificationArchived {
		return transitionError("notification", n.Status, NotificationRead)
	}
	if n.IsRead {
		return nil
	}
	n.IsRead = true
	n.ReadAt = &now
	n.Status = NotificationRead
	return nil
}

func (n *Notification) MarkAsClicked(now time.Time) error {
	if !n.IsClicked {
		n.IsClicked = true
		n.ClickedAt = &now
	}
	if n.Status == NotificationArchived {
		return nil
	}
	return n.MarkAsRead(now)
}

func (n *Notification) Dismiss(now time.Time) {
	if n.IsDismissed {
		return
	}
	n.IsDismissed = true
	n.DismissedAt = &now
}

func (n *Notification) Archive() {
	n.Status = NotificationArchived
}

// =======================
// Preferences
// =======================

type NotificationPreference struct {
	BaseModel
	UserID     string                `gorm:"type:varchar(36);not null;uniqueIndex:idx_pref_user_category" json:"user_id"`
	CategoryID string                `gorm:"type:varchar(36);not null;uniqueIndex:idx_pref_user_category" json:"category_id"`
	Category   *NotificationCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`

	EmailEnabled bool              `json:"email_enabled"`
	PushEnabled  bool              `json:"push_enabled"`
	SMSEnabled   bool              `json:"sms_enabled"`
	Frequency    DeliveryFrequency `gorm:"type:varchar(20);not null;default:'immediate'" json:"frequency"`

	QuietHoursEnabled bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   string `gorm:"size:5" json:"quiet_hours_start,omitempty"` // HH:MM
	QuietHoursEnd     string `gorm:"size:5" json:"quiet_hours_end,omitempty"`

	IsEnabled         bool       `json:"is_enabled"`
	DoNotDisturbUntil *time.Time `json:"do_not_disturb_until,omitempty"`
}

// DefaultPreference is what a user gets for a category they never configured.
func DefaultPreference(userID, categoryID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:       userID,
		CategoryID:   categoryID,
		EmailEnabled: true,
		PushEnabled:  true,
		Frequency:    FrequencyImmediate,
		IsEnabled:    true,
	}
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsQuietTime compares the wall clock of now against the quiet window,
// which may cross midnight. Both bounds are inclusive.
func (p *NotificationPreference) IsQuietTime(now time.Time) bool {
	if !p.QuietHoursEnabled || p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}
	start, err := ParseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := ParseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

func (p *NotificationPreference) ShouldReceive(now time.Time) bool {
	if !p.IsEnabled || p.Frequency == FrequencyNever {
		return false
	}
	if p.DoNotDisturbUntil != nil && now.Before(*p.DoNotDisturbUntil) {
		return false
	}
	return !p.IsQuietTime(now)
}

// AllowsChannel combines the global switch with the per-channel flag.
func (p *NotificationPreference) AllowsChannel(channel ChannelType) bool {
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelSMS:
		return p.SMSEnabled
	}
	return true
}
