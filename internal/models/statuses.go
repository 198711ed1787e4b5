package models

type UserRole string

const (
	UserRoleGuest UserRole = "guest"
	UserRoleHost  UserRole = "host"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleGuest, UserRoleHost, UserRoleAdmin:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

func (p NotificationPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
	NotificationRead      NotificationStatus = "read"
	NotificationArchived  NotificationStatus = "archived"
)

type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelPush    ChannelType = "push"
	ChannelSMS     ChannelType = "sms"
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
	ChannelDiscord ChannelType = "discord"
	ChannelTeams   ChannelType = "teams"
)

func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelWebhook, ChannelSlack, ChannelDiscord, ChannelTeams:
		return true
	}
	return false
}

type DeliveryFrequency string

const (
	FrequencyImmediate DeliveryFrequency = "immediate"
	FrequencyHourly    DeliveryFrequency = "hourly"
	FrequencyDaily     DeliveryFrequency = "daily"
	FrequencyWeekly    DeliveryFrequency = "weekly"
	FrequencyNever     DeliveryFrequency = "never"
)

func (f DeliveryFrequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyNever:
		return true
	}
	return false
}

// Email delivery record statuses.
type EmailStatus string

const (
	EmailPending      EmailStatus = "pending"
	EmailSent         EmailStatus = "sent"
	EmailDelivered    EmailStatus = "delivered"
	EmailOpened       EmailStatus = "opened"
	EmailClicked      EmailStatus = "clicked"
	EmailBounced      EmailStatus = "bounced"
	EmailFailed       EmailStatus = "failed"
	EmailUnsubscribed EmailStatus = "unsubscribed"
)

// Push delivery record statuses.
type PushStatus string

const (
	PushPending   PushStatus = "pending"
	PushSent      PushStatus = "sent"
	PushDelivered PushStatus = "delivered"
	PushFailed    PushStatus = "failed"
	PushClicked   PushStatus = "clicked"
)

type PushPlatform string

const (
	PlatformIOS     PushPlatform = "ios"
	PlatformAndroid PushPlatform = "android"
	PlatformWeb     PushPlatform = "web"
)

func (p PushPlatform) IsValid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Webhook delivery record statuses.
type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "pending"
	WebhookSent      WebhookStatus = "sent"
	WebhookDelivered WebhookStatus = "delivered"
	WebhookFailed    WebhookStatus = "failed"
	WebhookRetried   WebhookStatus = "retried"
)
