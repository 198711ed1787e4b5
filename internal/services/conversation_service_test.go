package services_test

import (
	"testing"

	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestConversationService_CreateGroup(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	host := helpers.CreateUser(t, f.db, models.UserRoleHost)
	guest := helpers.CreateUser(t, f.db, models.UserRoleGuest)

	resp, err := f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{
		Type:           "group",
		Name:           "Trip",
		ParticipantIDs: []string{guest.ID, guest.ID, host.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, "group", resp.Type)
	assert.Equal(t, int64(2), resp.ParticipantCount, "duplicates and the creator are collapsed")
	assert.Equal(t, 256, resp.MaxParticipants)

	var creatorIsAdmin bool
	for _, p := range resp.Participants {
		if p.UserID == host.ID {
			creatorIsAdmin = p.IsAdmin
		}
	}
	assert.True(t, creatorIsAdmin)
}

func TestConversationService_CreateRejects(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	host := helpers.CreateUser(t, f.db, models.UserRoleHost)
	a := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)

	_, err := f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{Type: "forum"})
	assert.Error(t, err)

	_, err = f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{
		Type: "direct", ParticipantIDs: []string{a.ID, b.ID},
	})
	assert.Error(t, err, "direct needs exactly one other participant")

	_, err = f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{
		Type: "group", ParticipantIDs: []string{a.ID, b.ID}, MaxParticipants: intPtr(2),
	})
	assert.ErrorIs(t, err, apperrors.ErrConversationFull)

	_, err = f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{
		Type: "group", MaxParticipants: intPtr(10000),
	})
	assert.Error(t, err)

	_, err = f.conversations.CreateConversation(f.db, host.ID, &dto.CreateConversationRequest{
		Type: "group", ParticipantIDs: []string{"missing-user"},
	})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestConversationService_GetOrCreateDirectIsStable(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)

	first, err := f.conversations.GetOrCreateDirect(f.db, a.ID, b.ID)
	require.NoError(t, err)
	second, err := f.conversations.GetOrCreateDirect(f.db, b.ID, a.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.ParticipantCount)

	_, err = f.conversations.GetOrCreateDirect(f.db, a.ID, a.ID)
	assert.Error(t, err)
}

func TestConversationService_Transitions(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	host := helpers.CreateUser(t, f.db, models.UserRoleHost)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationGroup, host)

	require.NoError(t, f.conversations.Mute(f.db, conversation.ID))
	require.NoError(t, f.conversations.Archive(f.db, conversation.ID))
	require.NoError(t, f.conversations.Activate(f.db, conversation.ID))
	require.NoError(t, f.conversations.Close(f.db, conversation.ID))

	err := f.conversations.Activate(f.db, conversation.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvariantViolation))

	resp, err := f.conversations.GetConversation(f.db, conversation.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", resp.Status)
	assert.False(t, resp.IsActive)

	assert.ErrorIs(t, f.conversations.Archive(f.db, "missing"), apperrors.ErrConversationNotFound)
}

func TestConversationService_AddParticipant(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	host := helpers.CreateUser(t, f.db, models.UserRoleHost)
	guest := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	extra := helpers.CreateUser(t, f.db, models.UserRoleGuest)

	direct := helpers.CreateConversation(t, f.db, chat.ConversationDirect, host, guest)
	_, err := f.conversations.AddParticipant(f.db, direct.ID, extra.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrConversationFull)

	group := helpers.CreateConversation(t, f.db, chat.ConversationGroup, host)
	first, err := f.conversations.AddParticipant(f.db, group.ID, guest.ID, false)
	require.NoError(t, err)
	again, err := f.conversations.AddParticipant(f.db, group.ID, guest.ID, true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "adding twice returns the existing membership")

	ok, err := f.conversations.IsParticipant(f.db, group.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.conversations.Close(f.db, group.ID))
	_, err = f.conversations.AddParticipant(f.db, group.ID, extra.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrConversationClosed)
}

func TestConversationService_ParticipantFloor(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)

	direct := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	assert.ErrorIs(t, f.conversations.Leave(f.db, direct.ID, b.ID), apperrors.ErrParticipantFloor)

	group := helpers.CreateConversation(t, f.db, chat.ConversationGroup, a, b)
	require.NoError(t, f.conversations.RemoveParticipant(f.db, group.ID, b.ID))
	assert.ErrorIs(t, f.conversations.RemoveParticipant(f.db, group.ID, b.ID), apperrors.ErrParticipantNotFound)

	strict := newChatFixture(t, services.ChatSettings{
		Limits:        services.DefaultChatSettings().Limits,
		FloorAllTypes: true,
	})
	x := helpers.CreateUser(t, strict.db, models.UserRoleHost)
	y := helpers.CreateUser(t, strict.db, models.UserRoleGuest)
	strictGroup := helpers.CreateConversation(t, strict.db, chat.ConversationGroup, x, y)
	assert.ErrorIs(t, strict.conversations.Leave(strict.db, strictGroup.ID, y.ID), apperrors.ErrParticipantFloor)
}

func TestConversationService_UpdateSettings(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	host := helpers.CreateUser(t, f.db, models.UserRoleHost)
	a := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	group := helpers.CreateConversation(t, f.db, chat.ConversationGroup, host, a, b)

	name := "Renamed"
	resp, err := f.conversations.UpdateSettings(f.db, group.ID, &dto.UpdateConversationRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", resp.Name)

	_, err = f.conversations.UpdateSettings(f.db, group.ID, &dto.UpdateConversationRequest{MaxParticipants: intPtr(2)})
	assert.Error(t, err, "limit below the current member count")

	direct := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	_, err = f.conversations.UpdateSettings(f.db, direct.ID, &dto.UpdateConversationRequest{MaxParticipants: intPtr(5)})
	assert.Error(t, err)
}

func TestConversationService_ReadState(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)

	helpers.CreateMessage(t, f.db, conversation, a, "one")
	helpers.CreateMessage(t, f.db, conversation, a, "two")
	helpers.CreateMessage(t, f.db, conversation, b, "mine")

	count, err := f.conversations.GetUnreadCountForUser(f.db, conversation.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated, err := f.conversations.MarkConversationRead(f.db, conversation.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	count, err = f.conversations.GetUnreadCountForUser(f.db, conversation.ID, b.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	participants, err := f.conversations.ListParticipants(f.db, conversation.ID)
	require.NoError(t, err)
	for _, p := range participants {
		if p.UserID == b.ID {
			assert.NotNil(t, p.LastReadAt)
		}
	}
}

func TestConversationService_ListForUser(t *testing.T) {
	f := newChatFixture(t, services.DefaultChatSettings())
	a := helpers.CreateUser(t, f.db, models.UserRoleHost)
	b := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	helpers.CreateConversation(t, f.db, chat.ConversationDirect, a, b)
	helpers.CreateConversation(t, f.db, chat.ConversationGroup, a)

	all, err := f.conversations.ListForUser(f.db, a.ID, dto.ConversationCriteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	groups, err := f.conversations.ListForUser(f.db, a.ID, dto.ConversationCriteria{Type: "group"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), groups.Total)

	other, err := f.conversations.ListForUser(f.db, b.ID, dto.ConversationCriteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Total)
}
