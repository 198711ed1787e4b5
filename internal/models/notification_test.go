package models

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(hour, minute int) time.Time {
	return time.Date(2024, 5, 10, hour, minute, 0, 0, time.UTC)
}

func TestNotification_Lifecycle(t *testing.T) {
	now := time.Now()
	n := &Notification{Status: NotificationPending}

	require.NoError(t, n.MarkAsSent(now))
	assert.Error(t, n.MarkAsSent(now))
	require.NoError(t, n.MarkAsDelivered(now))
	assert.True(t, errors.Is(n.MarkAsFailed(), ErrInvalidTransition))

	require.NoError(t, n.MarkAsRead(now))
	firstRead := *n.ReadAt
	require.NoError(t, n.MarkAsRead(now.Add(time.Hour)))
	assert.Equal(t, firstRead, *n.ReadAt)
	assert.Equal(t, NotificationRead, n.Status)
}

func TestNotification_ArchivedStaysArchived(t *testing.T) {
	now := time.Now()
	n := &Notification{Status: NotificationPending}
	n.Archive()

	assert.Error(t, n.MarkAsRead(now))
	require.NoError(t, n.MarkAsClicked(now))
	assert.True(t, n.IsClicked)
	assert.Equal(t, NotificationArchived, n.Status)
	assert.False(t, n.ShouldDeliver(now))
}

func TestNotification_ClickImpliesRead(t *testing.T) {
	now := time.Now()
	n := &Notification{Status: NotificationDelivered}

	require.NoError(t, n.MarkAsClicked(now))
	assert.True(t, n.IsRead)
	assert.Equal(t, NotificationRead, n.Status)
}

func TestNotification_ShouldDeliver(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.True(t, (&Notification{Status: NotificationPending}).ShouldDeliver(now))
	assert.True(t, (&Notification{Status: NotificationPending, ScheduledAt: &past}).ShouldDeliver(now))
	assert.False(t, (&Notification{Status: NotificationPending, ScheduledAt: &future}).ShouldDeliver(now))
	assert.False(t, (&Notification{Status: NotificationPending, ExpiresAt: &past}).ShouldDeliver(now))
	assert.False(t, (&Notification{Status: NotificationSent}).ShouldDeliver(now))
	assert.False(t, (&Notification{Status: NotificationPending, IsDismissed: true}).ShouldDeliver(now))

	scheduled := &Notification{Status: NotificationPending, ScheduledAt: &future}
	assert.True(t, scheduled.IsScheduled(now))
}

func TestNotification_DismissKeepsFirstTime(t *testing.T) {
	now := time.Now()
	n := &Notification{}
	n.Dismiss(now)
	n.Dismiss(now.Add(time.Hour))
	assert.Equal(t, now, *n.DismissedAt)
}

func TestPreference_QuietHours(t *testing.T) {
	p := DefaultPreference("u", "c")
	p.QuietHoursEnabled = true
	p.QuietHoursStart = "22:00"
	p.QuietHoursEnd = "07:00"

	assert.True(t, p.IsQuietTime(clock(23, 30)))
	assert.True(t, p.IsQuietTime(clock(7, 0)), "end bound is inclusive")
	assert.True(t, p.IsQuietTime(clock(22, 0)), "start bound is inclusive")
	assert.False(t, p.IsQuietTime(clock(12, 0)))
	assert.False(t, p.ShouldReceive(clock(1, 0)))

	p.QuietHoursStart = "09:00"
	p.QuietHoursEnd = "17:00"
	assert.True(t, p.IsQuietTime(clock(12, 0)))
	assert.False(t, p.IsQuietTime(clock(18, 0)))

	p.QuietHoursEnd = "bad"
	assert.False(t, p.IsQuietTime(clock(12, 0)))
}

func TestPreference_ShouldReceive(t *testing.T) {
	now := clock(12, 0)
	p := DefaultPreference("u", "c")
	assert.True(t, p.ShouldReceive(now))

	p.Frequency = FrequencyNever
	assert.False(t, p.ShouldReceive(now))

	p = DefaultPreference("u", "c")
	until := now.Add(time.Hour)
	p.DoNotDisturbUntil = &until
	assert.False(t, p.ShouldReceive(now))
	assert.True(t, p.ShouldReceive(until.Add(time.Second)))

	p = DefaultPreference("u", "c")
	p.IsEnabled = false
	assert.False(t, p.ShouldReceive(now))
}

func TestPreference_AllowsChannel(t *testing.T) {
	p := DefaultPreference("u", "c")
	p.PushEnabled = false

	assert.True(t, p.AllowsChannel(ChannelEmail))
	assert.False(t, p.AllowsChannel(ChannelPush))
	assert.False(t, p.AllowsChannel(ChannelSMS))
	assert.True(t, p.AllowsChannel(ChannelWebhook))
}

func TestWebhook_RetrySchedule(t *testing.T) {
	now := time.Now()
	w := &WebhookNotification{Status: WebhookPending, MaxRetries: 3}
	code := 500

	w.MarkAsFailed(&code, "boom", nil, now)
	assert.Equal(t, WebhookRetried, w.Status)
	assert.Equal(t, 1, w.RetryCount)
	require.NotNil(t, w.NextRetryAt)
	assert.Equal(t, now.Add(WebhookRetryDelay), *w.NextRetryAt)
	assert.True(t, w.CanRetry())
	assert.True(t, w.IsInFlight())

	w.MarkAsFailed(&code, "", nil, now)
	w.MarkAsFailed(nil, "", errors.New("timeout"), now)
	assert.Equal(t, WebhookFailed, w.Status)
	assert.Equal(t, 3, w.RetryCount)
	assert.Nil(t, w.NextRetryAt)
	assert.False(t, w.CanRetry())
	assert.Equal(t, "timeout", w.ErrorMessage)
}

func TestWebhook_DeliveredClearsRetry(t *testing.T) {
	now := time.Now()
	next := now.Add(time.Minute)
	w := &WebhookNotification{Status: WebhookRetried, NextRetryAt: &next, ErrorMessage: "x", MaxRetries: 3}

	long := make([]byte, maxStoredResponseBody+10)
	w.MarkAsDelivered(200, string(long), nil, now)

	assert.True(t, w.IsSuccess())
	assert.Nil(t, w.NextRetryAt)
	assert.Empty(t, w.ErrorMessage)
	assert.Len(t, w.ResponseBody, maxStoredResponseBody)
}

func TestWebhook_ResponseBodyKeepsRunesWhole(t *testing.T) {
	now := time.Now()
	code := 500
	w := &WebhookNotification{Status: WebhookSent, MaxRetries: 3}

	w.MarkAsFailed(&code, "a"+strings.Repeat("é", 3000), errors.New("unexpected status 500"), now)

	assert.True(t, utf8.ValidString(w.ResponseBody))
	assert.LessOrEqual(t, len(w.ResponseBody), maxStoredResponseBody)
	assert.Equal(t, maxStoredResponseBody-1, len(w.ResponseBody))

	w.MarkAsDelivered(200, "ok", nil, now)
	assert.Equal(t, "ok", w.ResponseBody)
}

func TestEmail_Events(t *testing.T) {
	now := time.Now()
	e := &EmailNotification{Status: EmailPending}

	e.MarkAsFailed(errors.New("smtp down"))
	assert.Equal(t, 1, e.RetryCount)
	assert.False(t, e.IsSuccess())

	e.MarkAsSent("<id@host>", now)
	assert.True(t, e.IsSuccess())
	assert.Empty(t, e.ErrorMessage)

	e.MarkAsBounced("", now)
	assert.Equal(t, "unknown", e.BounceType)
	assert.False(t, e.IsSuccess())
}

func TestUser_LoginLockout(t *testing.T) {
	now := time.Now()
	u := NewUser("a@b.c", "hash", "")
	assert.Equal(t, UserRoleGuest, u.Role)

	for i := 1; i < MaxLoginAttempts; i++ {
		assert.False(t, u.RegisterFailedLogin(now))
	}
	assert.True(t, u.RegisterFailedLogin(now))
	assert.True(t, u.IsLocked(now))
	assert.False(t, u.IsLocked(now.Add(LockoutDuration+time.Second)))

	u.RegisterSuccessfulLogin(now)
	assert.False(t, u.IsLocked(now))
	assert.Equal(t, 0, u.LoginAttempts)
}

func TestUser_PresenceAndPermissions(t *testing.T) {
	now := time.Now()
	u := NewUser("a@b.c", "hash", UserRoleGuest)
	assert.False(t, u.IsOnline(now))

	seen := now.Add(-time.Minute)
	u.LastSeen = &seen
	assert.True(t, u.IsOnline(now))
	u.ShowOnlineStatus = false
	assert.False(t, u.IsOnline(now))

	assert.False(t, u.CanCreateConversations())
	u.Role = UserRoleHost
	assert.True(t, u.CanCreateConversations())
	assert.False(t, u.HasModerationPermissions())

	u.IsSuspended = true
	assert.False(t, u.CanSignIn())

	assert.Equal(t, "a@b.c", u.DisplayName())
	u.FirstName = "Ann"
	assert.Equal(t, "Ann", u.DisplayName())
}
