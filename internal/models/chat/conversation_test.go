package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"messaging_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{GroupMaxParticipants: 10, ChannelMaxParticipants: 100}

func TestNewConversation_Defaults(t *testing.T) {
	c := NewConversation(ConversationGroup, "creator", testLimits)

	assert.Equal(t, ConversationActive, c.Status)
	assert.True(t, c.IsActive)
	assert.True(t, c.AllowFileSharing)
	assert.Equal(t, 10, c.MaxParticipants)
	assert.Equal(t, "creator", c.CreatedBy)

	direct := NewConversation(ConversationDirect, "creator", testLimits)
	assert.Equal(t, DirectParticipants, direct.MaxParticipants)
}

func TestConversation_StatusTransitions(t *testing.T) {
	c := NewConversation(ConversationGroup, "u", testLimits)

	require.NoError(t, c.Mute())
	assert.Equal(t, ConversationMuted, c.Status)
	assert.True(t, c.IsActive)

	require.NoError(t, c.Archive())
	assert.Equal(t, ConversationArchived, c.Status)
	assert.False(t, c.IsActive)

	assert.Error(t, c.Mute(), "archived conversations cannot be muted")

	require.NoError(t, c.Activate())
	assert.Equal(t, ConversationActive, c.Status)

	c.Close()
	assert.True(t, c.IsClosed())
	assert.False(t, c.IsActive)

	err := c.Activate()
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.True(t, errors.Is(c.Archive(), models.ErrInvalidTransition))
	assert.Equal(t, ConversationClosed, c.Status)
}

func TestConversation_ParticipantFloor(t *testing.T) {
	direct := NewConversation(ConversationDirect, "u", testLimits)
	assert.False(t, direct.CanRemoveParticipant(2, false))
	assert.True(t, direct.CanRemoveParticipant(3, false))

	group := NewConversation(ConversationGroup, "u", testLimits)
	assert.True(t, group.CanRemoveParticipant(2, false))
	assert.False(t, group.CanRemoveParticipant(2, true))
}

func TestConversation_HasCapacity(t *testing.T) {
	c := NewConversation(ConversationDirect, "u", testLimits)
	assert.True(t, c.HasCapacity(1))
	assert.False(t, c.HasCapacity(2))
}

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = NormalizeContent(" \n\t ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = NormalizeContent(strings.Repeat("я", MaxMessageLength))
	assert.NoError(t, err, "length is counted in characters")

	_, err = NormalizeContent(strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestMessage_EditKeepsFirstOriginal(t *testing.T) {
	now := time.Now()
	m := &Message{Content: "first", MessageType: MessageText}

	require.NoError(t, m.EditContent("second", now))
	require.NoError(t, m.EditContent(" third ", now))

	assert.Equal(t, "third", m.Content)
	assert.Equal(t, "first", m.OriginalContent)
	assert.True(t, m.IsEdited)
	require.NotNil(t, m.EditedAt)
}

func TestMessage_EditRejected(t *testing.T) {
	now := time.Now()

	system := &Message{Content: "joined", MessageType: MessageSystem}
	assert.ErrorIs(t, system.EditContent("x", now), ErrSystemMessage)

	deleted := &Message{Content: "x", MessageType: MessageText}
	deleted.SoftDelete("u", now)
	assert.ErrorIs(t, deleted.EditContent("y", now), ErrMessageIsDeleted)

	plain := &Message{Content: "x", MessageType: MessageText}
	assert.ErrorIs(t, plain.EditContent("   ", now), ErrEmptyContent)
	assert.Equal(t, "x", plain.Content)
}

func TestMessage_ReadStateIsIdempotent(t *testing.T) {
	now := time.Now()
	m := &Message{}

	assert.True(t, m.MarkAsRead(now))
	first := *m.ReadAt
	assert.False(t, m.MarkAsRead(now.Add(time.Minute)))
	assert.Equal(t, first, *m.ReadAt)

	assert.True(t, m.MarkAsUnread())
	assert.Nil(t, m.ReadAt)
	assert.False(t, m.MarkAsUnread())

	assert.True(t, m.MarkAsDelivered(now))
	assert.False(t, m.MarkAsDelivered(now))
}

func TestMessage_SoftDeleteOnce(t *testing.T) {
	now := time.Now()
	m := &Message{}

	assert.True(t, m.SoftDelete("actor", now))
	assert.False(t, m.SoftDelete("other", now))
	assert.Equal(t, "actor", *m.DeletedBy)
}

func TestMessage_SetPriority(t *testing.T) {
	m := &Message{}

	m.SetPriority(PriorityUrgent)
	assert.True(t, m.IsImportant)
	assert.True(t, m.IsUrgent)

	m.SetPriority(PriorityHigh)
	assert.True(t, m.IsImportant)
	assert.False(t, m.IsUrgent)

	m.SetPriority(7)
	assert.Equal(t, PriorityUrgent, m.Priority)

	m.SetPriority(-1)
	assert.Equal(t, PriorityNormal, m.Priority)
	assert.False(t, m.IsImportant)
}

func TestThreadDepth(t *testing.T) {
	parents := map[string]*string{}
	link := func(child, parent string) { parents[child] = &parent }
	link("c", "b")
	link("b", "a")
	lookup := func(id string) (*string, error) { return parents[id], nil }

	depth, err := ThreadDepth("a", lookup)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	depth, err = ThreadDepth("c", lookup)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	link("a", "c")
	_, err = ThreadDepth("c", lookup)
	assert.ErrorIs(t, err, ErrThreadCycle)
}

func TestAttachment_Helpers(t *testing.T) {
	assert.True(t, IsAllowedExtension("photo.JPG"))
	assert.False(t, IsAllowedExtension("run.exe"))
	assert.Equal(t, FileImage, FileTypeFromExtension("a.png"))
	assert.Equal(t, FileDocument, FileTypeFromExtension("a.pdf"))
	assert.Equal(t, FileOther, FileTypeFromExtension("a.bin"))

	assert.Equal(t, "512.0 B", HumanReadableSize(512))
	assert.Equal(t, "1.5 KB", HumanReadableSize(1536))
	assert.Equal(t, "2.0 MB", HumanReadableSize(2<<20))

	a := &MessageAttachment{}
	assert.True(t, a.SoftDelete(time.Now()))
	assert.False(t, a.SoftDelete(time.Now()))
}
