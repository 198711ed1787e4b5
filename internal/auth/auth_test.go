package auth

import (
	"net/http"
	"testing"
	"time"

	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)

	token, expiresAt, err := m.GenerateToken("user-1", "host", true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "host", claims.Role)
	assert.True(t, claims.IsStaff)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	token, _, err := m.GenerateToken("user-1", "guest", false)
	require.NoError(t, err)

	_, err = NewTokenManager("other", time.Minute).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenManager("secret", time.Nanosecond)
	token, _, err = expired.GenerateToken("user-1", "guest", false)
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = expired.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("secret123", hash))
	assert.False(t, CheckPasswordHash("secret124", hash))

	assert.NoError(t, ValidatePassword("abcdefg1"))
	assert.Error(t, ValidatePassword("short1"))
	assert.Error(t, ValidatePassword("onlyletters"))
	assert.Error(t, ValidatePassword("12345678"))
}

// ============================================
// Capabilities
// ============================================

func statusOf(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.HTTPCode
}

func access(user *models.User, conversation *chat.Conversation, participant *chat.ConversationParticipant) *Access {
	return &Access{UserID: user.ID, User: user, Conversation: conversation, Participant: participant}
}

func newUser(id string, role models.UserRole) *models.User {
	u := models.NewUser(id+"@test.com", "x", role)
	u.ID = id
	return u
}

func TestRequire_Unauthenticated(t *testing.T) {
	err := Require(nil, IsActiveUser)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	err = Require(&Access{}, IsActiveUser)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestSendMessageCaps(t *testing.T) {
	user := newUser("u1", models.UserRoleGuest)
	conversation := &chat.Conversation{CreatedBy: "other"}
	member := &chat.ConversationParticipant{UserID: "u1"}

	assert.NoError(t, Require(access(user, conversation, member), SendMessageCaps...))

	err := Require(access(user, conversation, nil), SendMessageCaps...)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	user.IsSuspended = true
	err = Require(access(user, conversation, member), SendMessageCaps...)
	assert.ErrorIs(t, err, apperrors.ErrAccountInactive)
}

func TestReadConversationCaps_StaffBypass(t *testing.T) {
	staff := newUser("s1", models.UserRoleGuest)
	staff.IsStaff = true
	conversation := &chat.Conversation{CreatedBy: "other"}

	assert.NoError(t, Require(access(staff, conversation, nil), ReadConversationCaps...))

	guest := newUser("g1", models.UserRoleGuest)
	assert.Error(t, Require(access(guest, conversation, nil), ReadConversationCaps...))
}

func TestManageConversationCaps(t *testing.T) {
	user := newUser("u1", models.UserRoleGuest)
	plain := &chat.ConversationParticipant{UserID: "u1"}
	admin := &chat.ConversationParticipant{UserID: "u1", IsAdmin: true}

	assert.Error(t, Require(access(user, &chat.Conversation{CreatedBy: "x"}, plain), ManageConversationCaps...))
	assert.NoError(t, Require(access(user, &chat.Conversation{CreatedBy: "x"}, admin), ManageConversationCaps...))
	assert.NoError(t, Require(access(user, &chat.Conversation{CreatedBy: "u1"}, plain), ManageConversationCaps...))
}

func TestMessageCaps(t *testing.T) {
	sender := newUser("u1", models.UserRoleGuest)
	other := newUser("u2", models.UserRoleGuest)
	creator := newUser("u3", models.UserRoleGuest)
	conversation := &chat.Conversation{CreatedBy: "u3"}
	message := &chat.Message{SenderID: "u1"}

	withMessage := func(u *models.User) *Access {
		a := access(u, conversation, nil)
		a.Message = message
		return a
	}

	assert.NoError(t, Require(withMessage(sender), EditMessageCaps...))
	assert.Error(t, Require(withMessage(other), EditMessageCaps...))
	assert.Error(t, Require(withMessage(creator), EditMessageCaps...))

	assert.NoError(t, Require(withMessage(creator), DeleteMessageCaps...))
	assert.Error(t, Require(withMessage(other), DeleteMessageCaps...))
}

func TestCreateGroupCaps(t *testing.T) {
	assert.Error(t, Require(access(newUser("g", models.UserRoleGuest), nil, nil), CreateGroupCaps...))
	assert.NoError(t, Require(access(newUser("h", models.UserRoleHost), nil, nil), CreateGroupCaps...))
	assert.NoError(t, Require(access(newUser("a", models.UserRoleAdmin), nil, nil), CreateGroupCaps...))
}

func TestAnyOf(t *testing.T) {
	allow := func(*Access) error { return nil }
	denyFirst := func(*Access) error { return apperrors.NewForbiddenError("first") }
	denyLast := func(*Access) error { return apperrors.NewForbiddenError("last") }
	a := access(newUser("u1", models.UserRoleGuest), nil, nil)

	tests := []struct {
		name    string
		caps    []Capability
		wantErr string
	}{
		{name: "all deny returns last denial", caps: []Capability{denyFirst, denyLast}, wantErr: "last"},
		{name: "first allows", caps: []Capability{allow, denyLast}},
		{name: "last allows", caps: []Capability{denyFirst, allow}},
		{name: "empty denies", caps: nil, wantErr: "Access denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnyOf(tt.caps...)(a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusForbidden, statusOf(t, err))
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr, appErr.Message)
		})
	}
}
