package services_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"messaging_backend/internal/email"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services"
	"messaging_backend/internal/services/dto"
	"messaging_backend/internal/webhook"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ============================================
// Transport fakes
// ============================================

type fakeMailer struct {
	mu   sync.Mutex
	sent []*email.Email
	err  error
}

func (m *fakeMailer) Send(e *email.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, e)
	return "<fake@test>", nil
}

func (m *fakeMailer) SendTemplate(to []string, subject, _ string, _ email.TemplateData) (string, error) {
	return m.Send(&email.Email{To: to, Subject: subject})
}

func (m *fakeMailer) Validate() error { return nil }
func (m *fakeMailer) Close() error    { return nil }

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakePusher struct {
	online map[string]bool
	pushed []services.PushPayload
}

func (p *fakePusher) Push(_ context.Context, userID string, payload services.PushPayload) error {
	if !p.online[userID] {
		return services.ErrClientOffline
	}
	p.pushed = append(p.pushed, payload)
	return nil
}

type fakeWebhooks struct {
	statuses []int
	requests []webhook.Request
}

// Send answers with the queued statuses in order, repeating the last one.
func (w *fakeWebhooks) Send(_ context.Context, req webhook.Request) (*webhook.Response, error) {
	w.requests = append(w.requests, req)
	if len(w.statuses) == 0 {
		return nil, errors.New("connection refused")
	}
	status := w.statuses[0]
	if len(w.statuses) > 1 {
		w.statuses = w.statuses[1:]
	}
	return &webhook.Response{StatusCode: status, Body: http.StatusText(status)}, nil
}

// ============================================
// Fixture
// ============================================

type notificationFixture struct {
	db            *gorm.DB
	notifications services.NotificationService
	delivery      services.DeliveryService
	mailer        *fakeMailer
	pusher        *fakePusher
	webhooks      *fakeWebhooks
	publisher     *recordingPublisher
	recipient     *models.User
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()

	db := helpers.NewTestDB(t)
	notificationRepo := repositories.NewNotificationRepository()
	deliveryRepo := repositories.NewDeliveryRepository()

	f := &notificationFixture{
		db:        db,
		mailer:    &fakeMailer{},
		pusher:    &fakePusher{online: map[string]bool{}},
		webhooks:  &fakeWebhooks{statuses: []int{http.StatusOK}},
		publisher: &recordingPublisher{},
	}
	f.delivery = services.NewDeliveryService(notificationRepo, deliveryRepo, f.mailer, f.pusher, f.webhooks, nil)
	f.notifications = services.NewNotificationService(
		notificationRepo,
		deliveryRepo,
		repositories.NewUserRepository(),
		services.NewInlineDispatcher(db, f.delivery),
		f.publisher,
		nil,
		services.NotificationSettings{FromEmail: "noreply@test.com"},
	)
	f.recipient = helpers.CreateUser(t, db, models.UserRoleGuest)
	return f
}

func (f *notificationFixture) create(t *testing.T, req *dto.CreateNotificationRequest) *dto.NotificationResponse {
	t.Helper()
	if req.RecipientID == "" {
		req.RecipientID = f.recipient.ID
	}
	if req.Title == "" {
		req.Title = "Hello"
	}
	if req.Message == "" {
		req.Message = "Body"
	}
	resp, err := f.notifications.Create(context.Background(), f.db, req)
	require.NoError(t, err)
	return resp
}

func (f *notificationFixture) reload(t *testing.T, id string) *dto.NotificationResponse {
	t.Helper()
	resp, err := f.notifications.Get(f.db, f.recipient.ID, id)
	require.NoError(t, err)
	return resp
}

// ============================================
// Dispatch
// ============================================

func TestNotificationService_InAppOnlyIsDelivered(t *testing.T) {
	f := newNotificationFixture(t)

	resp := f.create(t, &dto.CreateNotificationRequest{})

	got := f.reload(t, resp.ID)
	assert.Equal(t, "delivered", got.Status)
	assert.Nil(t, got.Deliveries)
	assert.Len(t, f.publisher.ofType(services.EventNotification), 1)
}

func TestNotificationService_AllTransportsSucceed(t *testing.T) {
	f := newNotificationFixture(t)
	f.pusher.online[f.recipient.ID] = true
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	pushCh := helpers.CreateChannel(t, f.db, models.ChannelPush, nil)
	hookCh := helpers.CreateChannel(t, f.db, models.ChannelWebhook, []byte(`{"url":"http://hooks.test/in","headers":{"X-Key":"k"}}`))

	resp := f.create(t, &dto.CreateNotificationRequest{
		ChannelIDs: []string{emailCh.ID, pushCh.ID, hookCh.ID, emailCh.ID},
		ExtraData:  map[string]interface{}{"order": "42"},
	})

	got := f.reload(t, resp.ID)
	assert.Equal(t, "delivered", got.Status)
	require.NotNil(t, got.Deliveries)
	assert.Equal(t, models.EmailSent, got.Deliveries.Email.Status)
	assert.Equal(t, "noreply@test.com", got.Deliveries.Email.FromEmail)
	assert.Equal(t, models.PushSent, got.Deliveries.Push.Status)
	assert.Equal(t, models.WebhookDelivered, got.Deliveries.Webhook.Status)

	assert.Equal(t, 1, f.mailer.count())
	require.Len(t, f.pusher.pushed, 1)
	assert.Equal(t, "42", f.pusher.pushed[0].Data["order"])
	require.Len(t, f.webhooks.requests, 1)
	assert.Equal(t, "k", f.webhooks.requests[0].Headers["X-Key"])
	assert.Equal(t, "POST", f.webhooks.requests[0].Method)
}

func TestNotificationService_OfflinePushFails(t *testing.T) {
	f := newNotificationFixture(t)
	pushCh := helpers.CreateChannel(t, f.db, models.ChannelPush, nil)

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{pushCh.ID}})

	got := f.reload(t, resp.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, models.PushFailed, got.Deliveries.Push.Status)
}

func TestNotificationService_OneSuccessIsEnough(t *testing.T) {
	f := newNotificationFixture(t)
	f.mailer.err = errors.New("smtp down")
	f.pusher.online[f.recipient.ID] = true
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	pushCh := helpers.CreateChannel(t, f.db, models.ChannelPush, nil)

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{emailCh.ID, pushCh.ID}})

	got := f.reload(t, resp.ID)
	assert.Equal(t, "delivered", got.Status)
	assert.Equal(t, models.EmailFailed, got.Deliveries.Email.Status)
	assert.Equal(t, "smtp down", got.Deliveries.Email.ErrorMessage)
}

func TestNotificationService_PreferencesFilterPersonalChannels(t *testing.T) {
	f := newNotificationFixture(t)
	category := helpers.CreateCategory(t, f.db, "billing")
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	hookCh := helpers.CreateChannel(t, f.db, models.ChannelSlack, []byte(`{"url":"http://hooks.test/slack"}`))

	off := false
	_, err := f.notifications.UpdatePreference(f.db, f.recipient.ID, &dto.UpdatePreferenceRequest{
		CategoryID: category.ID, EmailEnabled: &off,
	})
	require.NoError(t, err)

	resp := f.create(t, &dto.CreateNotificationRequest{
		CategoryID: &category.ID,
		ChannelIDs: []string{emailCh.ID, hookCh.ID},
	})

	got := f.reload(t, resp.ID)
	require.NotNil(t, got.Deliveries)
	assert.Nil(t, got.Deliveries.Email)
	require.NotNil(t, got.Deliveries.Webhook, "webhooks ignore personal preferences")
	assert.Zero(t, f.mailer.count())
}

func TestNotificationService_InactiveChannelIgnored(t *testing.T) {
	f := newNotificationFixture(t)
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	require.NoError(t, f.db.Model(emailCh).Update("is_active", false).Error)

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{emailCh.ID}})

	got := f.reload(t, resp.ID)
	assert.Nil(t, got.Deliveries)
	assert.Zero(t, f.mailer.count())
}

func TestNotificationService_CreateRejects(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	_, err := f.notifications.Create(ctx, f.db, &dto.CreateNotificationRequest{
		RecipientID: "missing", Title: "t", Message: "m",
	})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	_, err = f.notifications.Create(ctx, f.db, &dto.CreateNotificationRequest{
		RecipientID: f.recipient.ID, Title: "t", Message: "m", Priority: "extreme",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	past := time.Now().Add(-time.Minute)
	_, err = f.notifications.Create(ctx, f.db, &dto.CreateNotificationRequest{
		RecipientID: f.recipient.ID, Title: "t", Message: "m", ExpiresAt: &past,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	_, err = f.notifications.Create(ctx, f.db, &dto.CreateNotificationRequest{
		RecipientID: f.recipient.ID, Title: "t", Message: "m", CategoryName: "nope",
	})
	assert.ErrorIs(t, err, apperrors.ErrCategoryNotFound)
}

// ============================================
// Webhook retries and scheduling
// ============================================

func TestDeliveryService_WebhookRetriesUntilExhausted(t *testing.T) {
	f := newNotificationFixture(t)
	f.webhooks.statuses = []int{http.StatusInternalServerError}
	hookCh := helpers.CreateChannel(t, f.db, models.ChannelWebhook, []byte(`{"url":"http://hooks.test/in","max_retries":2}`))
	ctx := context.Background()

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{hookCh.ID}})

	got := f.reload(t, resp.ID)
	assert.Equal(t, "sent", got.Status, "a retried webhook keeps the notification in flight")
	hook := got.Deliveries.Webhook
	assert.Equal(t, models.WebhookRetried, hook.Status)
	assert.Equal(t, 1, hook.RetryCount)
	require.NotNil(t, hook.NextRetryAt)

	processed, err := f.delivery.ProcessDueWebhookRetries(ctx, f.db, models.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, processed, "retry is not due yet")

	later := models.Now().Add(models.WebhookRetryDelay + time.Minute)
	processed, err = f.delivery.ProcessDueWebhookRetries(ctx, f.db, later, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	got = f.reload(t, resp.ID)
	assert.Equal(t, models.WebhookFailed, got.Deliveries.Webhook.Status)
	assert.Equal(t, 2, got.Deliveries.Webhook.RetryCount)
	assert.Equal(t, "failed", got.Status)
	assert.Len(t, f.webhooks.requests, 2)
}

func TestDeliveryService_WebhookErrorStatusLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter("production", &buf)
	t.Cleanup(func() { logger.Init("development") })

	f := newNotificationFixture(t)
	f.webhooks.statuses = []int{http.StatusServiceUnavailable}
	hookCh := helpers.CreateChannel(t, f.db, models.ChannelWebhook, []byte(`{"url":"http://hooks.test/in"}`))

	f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{hookCh.ID}})

	out := buf.String()
	assert.Contains(t, out, `"msg":"notification delivery failed"`)
	assert.Contains(t, out, "unexpected status 503")
	assert.NotContains(t, out, `"msg":"notification delivered","channel":"webhook"`)
}

func TestDeliveryService_WebhookRetrySucceeds(t *testing.T) {
	f := newNotificationFixture(t)
	f.webhooks.statuses = []int{http.StatusBadGateway, http.StatusOK}
	hookCh := helpers.CreateChannel(t, f.db, models.ChannelWebhook, []byte(`{"url":"http://hooks.test/in"}`))
	ctx := context.Background()

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{hookCh.ID}})
	webhookID := f.reload(t, resp.ID).Deliveries.Webhook.ID

	ok, err := f.delivery.RetryWebhook(ctx, f.db, webhookID)
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	later := models.Now().Add(models.WebhookRetryDelay + time.Minute)
	processed, err := f.delivery.ProcessDueWebhookRetries(ctx, f.db, later, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	processed, err = f.delivery.ProcessDueWebhookRetries(ctx, f.db, later, 10)
	require.NoError(t, err)
	assert.Zero(t, processed, "a delivered record is never claimed again")

	got := f.reload(t, resp.ID)
	assert.Equal(t, "delivered", got.Status)
	assert.Equal(t, models.WebhookDelivered, got.Deliveries.Webhook.Status)
}

func TestDeliveryService_DeliverIsIdempotent(t *testing.T) {
	f := newNotificationFixture(t)
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{emailCh.ID}})
	require.NoError(t, f.delivery.Deliver(context.Background(), f.db, resp.ID))

	assert.Equal(t, 1, f.mailer.count())
}

func TestDeliveryService_ScheduledNotifications(t *testing.T) {
	f := newNotificationFixture(t)
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	ctx := context.Background()

	at := models.Now().Add(time.Hour)
	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{emailCh.ID}, ScheduledAt: &at})

	assert.Equal(t, "pending", f.reload(t, resp.ID).Status)
	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.publisher.ofType(services.EventNotification))

	dispatched, err := f.delivery.DispatchDueScheduled(ctx, f.db, models.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, dispatched)

	realNow := models.Now
	models.Now = func() time.Time { return at.Add(time.Minute) }
	t.Cleanup(func() { models.Now = realNow })

	dispatched, err = f.delivery.DispatchDueScheduled(ctx, f.db, models.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, "delivered", f.reload(t, resp.ID).Status)
	assert.Equal(t, 1, f.mailer.count())
}

func TestDeliveryService_ProviderEvents(t *testing.T) {
	f := newNotificationFixture(t)
	f.pusher.online[f.recipient.ID] = true
	emailCh := helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	pushCh := helpers.CreateChannel(t, f.db, models.ChannelPush, nil)

	resp := f.create(t, &dto.CreateNotificationRequest{ChannelIDs: []string{emailCh.ID, pushCh.ID}})

	record, err := f.delivery.RecordEmailEvent(f.db, resp.ID, "opened", "")
	require.NoError(t, err)
	assert.Equal(t, models.EmailOpened, record.Status)

	record, err = f.delivery.RecordEmailEvent(f.db, resp.ID, "bounced", "")
	require.NoError(t, err)
	assert.Equal(t, "unknown", record.BounceType)

	push, err := f.delivery.RecordPushEvent(f.db, resp.ID, "clicked", "")
	require.NoError(t, err)
	assert.Equal(t, models.PushClicked, push.Status)

	_, err = f.delivery.RecordPushEvent(f.db, resp.ID, "exploded", "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	other := f.create(t, &dto.CreateNotificationRequest{})
	_, err = f.delivery.RecordEmailEvent(f.db, other.ID, "opened", "")
	assert.ErrorIs(t, err, apperrors.ErrDeliveryNotFound)
}

// ============================================
// User actions
// ============================================

func TestNotificationService_UserActions(t *testing.T) {
	f := newNotificationFixture(t)
	first := f.create(t, &dto.CreateNotificationRequest{Title: "one"})
	second := f.create(t, &dto.CreateNotificationRequest{Title: "two"})
	third := f.create(t, &dto.CreateNotificationRequest{Title: "three"})

	count, err := f.notifications.UnreadCount(f.db, f.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	read, err := f.notifications.MarkAsRead(f.db, f.recipient.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "read", read.Status)

	clicked, err := f.notifications.MarkAsClicked(f.db, f.recipient.ID, second.ID)
	require.NoError(t, err)
	assert.True(t, clicked.IsClicked)
	assert.True(t, clicked.IsRead)

	archived, err := f.notifications.Archive(f.db, f.recipient.ID, third.ID)
	require.NoError(t, err)
	assert.Equal(t, "archived", archived.Status)
	_, err = f.notifications.MarkAsRead(f.db, f.recipient.ID, third.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvariantViolation))

	dismissed, err := f.notifications.Dismiss(f.db, f.recipient.ID, third.ID)
	require.NoError(t, err)
	assert.True(t, dismissed.IsDismissed)

	stranger := helpers.CreateUser(t, f.db, models.UserRoleGuest)
	_, err = f.notifications.Get(f.db, stranger.ID, first.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotificationNotFound)

	deleted, err := f.notifications.DeleteRead(f.db, f.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	list, err := f.notifications.List(f.db, f.recipient.ID, dto.NotificationCriteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	f := newNotificationFixture(t)
	f.create(t, &dto.CreateNotificationRequest{})
	f.create(t, &dto.CreateNotificationRequest{})

	updated, err := f.notifications.MarkAllRead(f.db, f.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	count, err := f.notifications.UnreadCount(f.db, f.recipient.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationService_NotifyNewMessage(t *testing.T) {
	f := newNotificationFixture(t)
	sender := helpers.CreateUser(t, f.db, models.UserRoleHost)
	conversation := helpers.CreateConversation(t, f.db, chat.ConversationDirect, sender, f.recipient)
	message := helpers.CreateMessage(t, f.db, conversation, sender, "are you there?")
	helpers.CreateChannel(t, f.db, models.ChannelEmail, nil)
	helpers.CreateChannel(t, f.db, models.ChannelWebhook, []byte(`{"url":"http://hooks.test/in"}`))

	require.NoError(t, f.notifications.NotifyNewMessage(context.Background(), f.db, message, []string{f.recipient.ID}))

	list, err := f.notifications.List(f.db, f.recipient.ID, dto.NotificationCriteria{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	n := list.Notifications[0]
	assert.Equal(t, "are you there?", n.Message)
	assert.Equal(t, message.ID, n.RelatedObjectID)
	assert.Equal(t, conversation.ID, n.ExtraData["conversation_id"])

	assert.Equal(t, 1, f.mailer.count())
	assert.Empty(t, f.webhooks.requests, "chat notifications only use email and push")

	categories, err := f.notifications.ListCategories(f.db, true)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, services.MessagesCategory, categories[0].Name)
}

// ============================================
// Categories, channels and preferences
// ============================================

func TestNotificationService_CategoriesAndChannels(t *testing.T) {
	f := newNotificationFixture(t)

	_, err := f.notifications.CreateCategory(f.db, &dto.CreateCategoryRequest{Name: "system"})
	require.NoError(t, err)
	_, err = f.notifications.CreateCategory(f.db, &dto.CreateCategoryRequest{Name: "system"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = f.notifications.CreateChannel(f.db, &dto.CreateChannelRequest{Name: "hook", ChannelType: "webhook"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed), "webhook needs a url")

	inactive := false
	ch, err := f.notifications.CreateChannel(f.db, &dto.CreateChannelRequest{
		Name:        "hook",
		ChannelType: "teams",
		IsActive:    &inactive,
		Config:      &dto.ChannelConfigRequest{URL: "http://hooks.test/teams", MaxRetries: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, ch.Config.MaxRetries)

	all, err := f.notifications.ListChannels(f.db, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	active, err := f.notifications.ListChannels(f.db, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNotificationService_Preferences(t *testing.T) {
	f := newNotificationFixture(t)
	category := helpers.CreateCategory(t, f.db, "digest")

	prefs, err := f.notifications.GetPreferences(f.db, f.recipient.ID)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.True(t, prefs[0].EmailEnabled, "defaults apply before any update")

	on := true
	start, end := "22:00", "07:00"
	updated, err := f.notifications.UpdatePreference(f.db, f.recipient.ID, &dto.UpdatePreferenceRequest{
		CategoryID:        category.ID,
		Frequency:         "daily",
		QuietHoursEnabled: &on,
		QuietHoursStart:   &start,
		QuietHoursEnd:     &end,
	})
	require.NoError(t, err)
	assert.Equal(t, "daily", updated.Frequency)

	prefs, err = f.notifications.GetPreferences(f.db, f.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, "22:00", prefs[0].QuietHoursStart)
	assert.Equal(t, "digest", prefs[0].CategoryName)

	_, err = f.notifications.UpdatePreference(f.db, f.recipient.ID, &dto.UpdatePreferenceRequest{CategoryID: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrCategoryNotFound)
}
