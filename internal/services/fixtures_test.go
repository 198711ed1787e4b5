package services_test

import (
	"context"
	"sync"
	"testing"

	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services"
	"messaging_backend/test/helpers"

	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	UserIDs []string
	Event   services.RealtimeEvent
}

func (p *recordingPublisher) PublishToUsers(userIDs []string, event services.RealtimeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{UserIDs: append([]string(nil), userIDs...), Event: event})
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []publishedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

type recordingNotifier struct {
	calls [][]string
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, _ *gorm.DB, _ *chat.Message, recipientIDs []string) error {
	n.calls = append(n.calls, recipientIDs)
	return nil
}

type chatFixture struct {
	db            *gorm.DB
	conversations services.ConversationService
	messages      services.MessageService
	publisher     *recordingPublisher
	notifier      *recordingNotifier
}

func newChatFixture(t *testing.T, settings services.ChatSettings) *chatFixture {
	t.Helper()

	db := helpers.NewTestDB(t)
	conversationRepo := repositories.NewConversationRepository()
	messageRepo := repositories.NewMessageRepository()
	userRepo := repositories.NewUserRepository()

	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	conversations := services.NewConversationService(conversationRepo, messageRepo, userRepo, settings)
	messages := services.NewMessageService(conversationRepo, messageRepo, userRepo, conversations, publisher, notifier)

	return &chatFixture{
		db:            db,
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		notifier:      notifier,
	}
}
