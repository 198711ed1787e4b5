package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_CreateMessage(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)

	resp, err := f.messages.CreateMessage(context.Background(), f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID,
		Content:        "  hello  ",
		Priority:       chat.PriorityUrgent,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "text", resp.MessageType)
	assert.True(t, resp.IsUrgent)

	var stored chat.Conversation
	require.NoError(t, f.db.First(&stored, "id = ?", conversation.ID).Error)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, resp.ID, *stored.LastMessageID)

	created := f.publisher.ofType(services.EventMessageCreated)
	require.Len(t, created, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, created[0].UserIDs)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, []string{b.ID}, f.notifier.calls[0])
}

func TestMessageService_CreateRejects(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	ctx := context.Background()
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	outsider := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a, b)

	_, err := f.messages.CreateMessage(ctx, f.db, outsider.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "hi",
	})
	assert.ErrorIs(t, err, apperrors.ErrSenderNotMember)

	_, err = f.messages.CreateMessage(ctx, f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "   ",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	_, err = f.messages.CreateMessage(ctx, f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: strings.Repeat("x", chat.MaxMessageLength+1),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	past := time.Now().Add(-time.Hour)
	_, err = f.messages.CreateMessage(ctx, f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "late", ExpiresAt: &past,
	})
	assert.Error(t, err)

	missing := "missing"
	_, err = f.messages.CreateMessage(ctx, f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "hi", ThreadID: &missing,
	})
	assert.Error(t, err)

	require.NoError(t, f.conversations.Close(f.db, conversation.ID))
	_, err = f.messages.CreateMessage(ctx, f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "hi",
	})
	assert.ErrorIs(t, err, apperrors.ErrConversationClosed)
}

func TestMessageService_MutedSkipsNotifications(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a, b)
	require.NoError(t, f.conversations.Mute(f.db, conversation.ID))

	_, err := f.messages.CreateMessage(context.Background(), f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "quiet",
	})
	require.NoError(t, err)

	assert.Len(t, f.publisher.ofType(services.EventMessageCreated), 1)
	assert.Empty(t, f.notifier.calls)
}

func TestMessageService_RetentionSetsExpiry(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a, b)

	days := 7
	_, err := f.conversations.UpdateSettings(f.db, conversation.ID, &dto.UpdateConversationRequest{MessageRetentionDays: &days})
	require.NoError(t, err)

	resp, err := f.messages.CreateMessage(context.Background(), f.db, a.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "ephemeral",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *resp.ExpiresAt, time.Minute)
}

func TestMessageService_EditAndDelete(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	message := helpers.CreateMessage(t, f.db, conversation, a, "draft")

	resp, err := f.messages.EditContent(f.db, a.ID, message.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", resp.Content)
	assert.Equal(t, "draft", resp.OriginalContent)
	assert.True(t, resp.IsEdited)
	assert.Len(t, f.publisher.ofType(services.EventMessageUpdated), 1)

	require.NoError(t, f.messages.SoftDelete(f.db, a.ID, message.ID))
	require.NoError(t, f.messages.SoftDelete(f.db, a.ID, message.ID))
	assert.Len(t, f.publisher.ofType(services.EventMessageDeleted), 1, "second delete is a no-op")

	got, err := f.messages.GetMessage(f.db, message.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.Content)

	_, err = f.messages.EditContent(f.db, a.ID, message.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrMessageDeleted)

	list, err := f.messages.ListMessages(f.db, conversation.ID, dto.MessageCriteria{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestMessageService_ReadStates(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	message := helpers.CreateMessage(t, f.db, conversation, a, "ping")

	unread, err := f.messages.ListUnreadForUser(f.db, b.ID)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	resp, err := f.messages.MarkAsRead(f.db, b.ID, message.ID)
	require.NoError(t, err)
	assert.True(t, resp.IsRead)
	firstRead := *resp.ReadAt

	resp, err = f.messages.MarkAsRead(f.db, b.ID, message.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, firstRead, *resp.ReadAt, time.Millisecond)

	readEvents := f.publisher.ofType(services.EventMessageRead)
	require.Len(t, readEvents, 1)
	assert.Equal(t, []string{a.ID}, readEvents[0].UserIDs)

	resp, err = f.messages.MarkAsUnread(f.db, message.ID)
	require.NoError(t, err)
	assert.False(t, resp.IsRead)

	resp, err = f.messages.MarkAsDelivered(f.db, message.ID)
	require.NoError(t, err)
	assert.True(t, resp.IsDelivered)
}

func TestMessageService_MarkAsReadRequiresParticipant(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	outsider := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	message := helpers.CreateMessage(t, f.db, conversation, a, "for b only")

	_, err := f.messages.MarkAsRead(f.db, outsider.ID, message.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	unread, err := f.messages.ListUnreadForUser(f.db, b.ID)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	assert.Empty(t, f.publisher.ofType(services.EventMessageRead))
}

func TestMessageService_ReplyStartsThread(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	ctx := context.Background()
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	original := helpers.CreateMessage(t, f.db, conversation, a, "question")

	first, err := f.messages.Reply(ctx, f.db, b.ID, original.ID, "answer")
	require.NoError(t, err)
	require.NotNil(t, first.ThreadID)
	assert.Equal(t, original.ID, *first.ReplyToID)

	second, err := f.messages.Reply(ctx, f.db, a.ID, first.ID, "follow-up")
	require.NoError(t, err)
	assert.Equal(t, *first.ThreadID, *second.ThreadID, "replies join the existing thread")

	depth, err := f.messages.GetThreadDepth(f.db, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, depth.Depth)
}

func TestMessageService_ThreadDepth(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	ctx := context.Background()
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a, b)

	root, err := f.messages.CreateThread(f.db, a.ID, &dto.CreateThreadRequest{ConversationID: conversation.ID, Subject: "root"})
	require.NoError(t, err)
	child, err := f.messages.CreateThread(f.db, a.ID, &dto.CreateThreadRequest{ConversationID: conversation.ID, ParentThreadID: &root.ID})
	require.NoError(t, err)
	leaf, err := f.messages.CreateThread(f.db, b.ID, &dto.CreateThreadRequest{ConversationID: conversation.ID, ParentThreadID: &child.ID})
	require.NoError(t, err)

	msg, err := f.messages.CreateMessage(ctx, f.db, b.ID, &dto.CreateMessageRequest{
		ConversationID: conversation.ID, Content: "deep", ThreadID: &leaf.ID,
	})
	require.NoError(t, err)

	depth, err := f.messages.GetThreadDepth(f.db, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, depth.Depth)

	other := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a)
	_, err = f.messages.CreateThread(f.db, a.ID, &dto.CreateThreadRequest{ConversationID: other.ID, ParentThreadID: &root.ID})
	assert.Error(t, err, "parent must be in the same conversation")

	// cycle written behind the service's back
	require.NoError(t, f.db.Model(&chat.MessageThread{}).Where("id = ?", root.ID).Update("parent_thread_id", leaf.ID).Error)
	_, err = f.messages.GetThreadDepth(f.db, msg.ID)
	assert.ErrorIs(t, err, apperrors.ErrThreadCycle)
}

func TestMessageService_Forward(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	ctx := context.Background()
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	c := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	source := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	target := helpers.CreateConversation(t, f.db, chat.ConversationDirect, b, c)
	original := helpers.CreateMessage(t, f.db, source, a, "news")

	resp, err := f.messages.Forward(ctx, f.db, b.ID, original.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, resp.ConversationID)
	assert.Contains(t, resp.Content, "news")
	assert.Contains(t, resp.Content, a.Email)

	_, err = f.messages.Forward(ctx, f.db, c.ID, original.ID, target.ID)
	assert.Error(t, err, "c cannot read the source conversation")

	_, err = f.messages.Forward(ctx, f.db, a.ID, original.ID, target.ID)
	assert.ErrorIs(t, err, apperrors.ErrSenderNotMember)
}

func TestMessageService_Typing(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	outsider := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)

	require.NoError(t, f.messages.Typing(f.db, a.ID, conversation.ID))
	events := f.publisher.ofType(services.EventTyping)
	require.Len(t, events, 1)
	assert.Equal(t, []string{b.ID}, events[0].UserIDs)

	assert.Error(t, f.messages.Typing(f.db, outsider.ID, conversation.ID))
}
