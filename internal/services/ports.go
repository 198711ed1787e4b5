package services

import (
	"context"
	"errors"

	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/webhook"

	"gorm.io/gorm"
)

// Realtime event types published to websocket clients.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventMessageRead    = "message.read"
	EventTyping         = "conversation.typing"
	EventNotification   = "notification"
)

type RealtimeEvent struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

// MessagePublisher fans realtime events out to connected users.
type MessagePublisher interface {
	PublishToUsers(userIDs []string, event RealtimeEvent)
}

// ErrClientOffline is returned by a PushSender when the user has no live
// connection.
var ErrClientOffline = errors.New("push: client offline")

type PushPayload struct {
	NotificationID string                 `json:"notification_id"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	ActionURL      string                 `json:"action_url,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

type PushSender interface {
	Push(ctx context.Context, userID string, payload PushPayload) error
}

type WebhookSender interface {
	Send(ctx context.Context, req webhook.Request) (*webhook.Response, error)
}

// Dispatcher starts delivery of a committed notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, notificationID string) error
}

// MessageNotifier creates new-message notifications for participants that
// were not connected when the message arrived.
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, db *gorm.DB, message *chat.Message, recipientIDs []string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishToUsers([]string, RealtimeEvent) {}
