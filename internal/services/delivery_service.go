package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"messaging_backend/internal/email"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/webhook"
	"messaging_backend/pkg/apperrors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errEmailNotConfigured = errors.New("email transport is not configured")

// DeliveryService runs the transports of a notification and keeps the
// notification status in line with the outcome of its delivery records.
type DeliveryService interface {
	Deliver(ctx context.Context, db *gorm.DB, notificationID string) error
	RetryWebhook(ctx context.Context, db *gorm.DB, webhookID string) (bool, error)
	ProcessDueWebhookRetries(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int, error)
	DispatchDueScheduled(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int, error)

	RecordEmailEvent(db *gorm.DB, notificationID, event, bounceType string) (*models.EmailNotification, error)
	RecordPushEvent(db *gorm.DB, notificationID, event, errorMessage string) (*models.PushNotification, error)
}

type deliveryService struct {
	notificationRepo repositories.NotificationRepository
	deliveryRepo     repositories.DeliveryRepository
	mailer           email.Provider
	pusher           PushSender
	webhooks         WebhookSender
	// dispatcher hands due scheduled notifications to the queue. Without one
	// they are delivered in the calling goroutine.
	dispatcher Dispatcher
}

func NewDeliveryService(
	notificationRepo repositories.NotificationRepository,
	deliveryRepo repositories.DeliveryRepository,
	mailer email.Provider,
	pusher PushSender,
	webhooks WebhookSender,
	dispatcher Dispatcher,
) DeliveryService {
	return &deliveryService{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		mailer:           mailer,
		pusher:           pusher,
		webhooks:         webhooks,
		dispatcher:       dispatcher,
	}
}

// ============================================
// Delivery
// ============================================

// Deliver moves a pending notification to sent before any transport runs.
// The move is conditional, so a notification picked up twice is only
// delivered once.
func (s *deliveryService) Deliver(ctx context.Context, db *gorm.DB, notificationID string) error {
	now := models.Now()

	notification, err := s.notificationRepo.FindNotificationByID(db, notificationID)
	if err != nil {
		return handleNotificationError(err)
	}
	if !notification.ShouldDeliver(now) {
		logger.CtxInfo(ctx, "notification skipped", "notification_id", notificationID, "status", notification.Status)
		return nil
	}

	claimed, err := s.notificationRepo.UpdateStatusIf(db, notificationID, models.NotificationPending, models.NotificationSent,
		map[string]interface{}{"sent_at": now})
	if err != nil {
		return apperrors.InternalError(err)
	}
	if !claimed {
		logger.CtxInfo(ctx, "notification already claimed", "notification_id", notificationID)
		return nil
	}

	s.deliverEmail(ctx, db, notificationID)
	s.deliverPush(ctx, db, notification)
	s.deliverWebhook(ctx, db, notificationID, now)

	return s.refreshAggregate(db, notificationID)
}

func (s *deliveryService) deliverEmail(ctx context.Context, db *gorm.DB, notificationID string) {
	record, err := s.deliveryRepo.FindEmailByNotification(db, notificationID)
	if err != nil {
		if !errors.Is(err, repositories.ErrDeliveryNotFound) {
			logger.DeliveryLog("email", notificationID, err)
		}
		return
	}
	if record.Status != models.EmailPending {
		return
	}

	var sendErr error
	var providerID string
	if s.mailer == nil {
		sendErr = errEmailNotConfigured
	} else {
		providerID, sendErr = s.mailer.Send(&email.Email{
			From:     record.FromEmail,
			To:       []string{record.ToEmail},
			Subject:  record.Subject,
			Body:     record.TextContent,
			HTMLBody: record.HTMLContent,
		})
	}

	if sendErr != nil {
		record.MarkAsFailed(sendErr)
	} else {
		record.MarkAsSent(providerID, models.Now())
	}
	logger.DeliveryLog("email", notificationID, sendErr, "status", record.Status)

	if err := s.deliveryRepo.UpdateEmail(db, record); err != nil {
		logger.CtxWithError(ctx, "failed to save email delivery", err, "notification_id", notificationID)
	}
}

func (s *deliveryService) deliverPush(ctx context.Context, db *gorm.DB, notification *models.Notification) {
	record, err := s.deliveryRepo.FindPushByNotification(db, notification.ID)
	if err != nil {
		if !errors.Is(err, repositories.ErrDeliveryNotFound) {
			logger.DeliveryLog("push", notification.ID, err)
		}
		return
	}
	if record.Status != models.PushPending {
		return
	}

	payload := PushPayload{
		NotificationID: notification.ID,
		Title:          record.Title,
		Body:           record.Body,
		ActionURL:      notification.ActionURL,
	}
	if len(record.Data) > 0 {
		if err := json.Unmarshal(record.Data, &payload.Data); err != nil {
			logger.CtxWithError(ctx, "dropping malformed push data", err, "notification_id", notification.ID)
		}
	}

	var sendErr error
	if s.pusher == nil {
		sendErr = ErrClientOffline
	} else {
		sendErr = s.pusher.Push(ctx, notification.RecipientID, payload)
	}

	now := models.Now()
	if sendErr != nil {
		record.MarkAsFailed(sendErr, now)
	} else {
		record.MarkAsSent(now)
	}
	logger.DeliveryLog("push", notification.ID, sendErr, "status", record.Status)

	if err := s.deliveryRepo.UpdatePush(db, record); err != nil {
		logger.CtxWithError(ctx, "failed to save push delivery", err, "notification_id", notification.ID)
	}
}

func (s *deliveryService) deliverWebhook(ctx context.Context, db *gorm.DB, notificationID string, now time.Time) {
	record, err := s.deliveryRepo.FindWebhookByNotification(db, notificationID)
	if err != nil {
		if !errors.Is(err, repositories.ErrDeliveryNotFound) {
			logger.DeliveryLog("webhook", notificationID, err)
		}
		return
	}

	claimed, err := s.deliveryRepo.ClaimWebhookPending(db, record.ID, now)
	if err != nil {
		logger.DeliveryLog("webhook", notificationID, err)
		return
	}
	if !claimed {
		return
	}
	record.MarkAsSent(now)
	s.attemptWebhook(ctx, db, record)
}

// attemptWebhook performs one HTTP attempt for a record that was already
// claimed and stores the outcome. A non-2xx answer counts as a failure.
func (s *deliveryService) attemptWebhook(ctx context.Context, db *gorm.DB, record *models.WebhookNotification) {
	req := webhook.Request{
		URL:     record.URL,
		Method:  record.Method,
		Payload: []byte(record.Payload),
	}
	if len(record.Headers) > 0 {
		if err := json.Unmarshal(record.Headers, &req.Headers); err != nil {
			logger.CtxWithError(ctx, "ignoring malformed webhook headers", err, "webhook_id", record.ID)
		}
	}

	var resp *webhook.Response
	var sendErr error
	if s.webhooks == nil {
		sendErr = errors.New("webhook transport is not configured")
	} else {
		resp, sendErr = s.webhooks.Send(ctx, req)
	}

	now := models.Now()
	attemptErr := sendErr
	switch {
	case sendErr != nil:
		record.MarkAsFailed(nil, "", sendErr, now)
	case resp.OK():
		headers, err := json.Marshal(resp.Headers)
		if err != nil {
			headers = nil
		}
		record.MarkAsDelivered(resp.StatusCode, resp.Body, datatypes.JSON(headers), now)
	default:
		code := resp.StatusCode
		attemptErr = fmt.Errorf("unexpected status %d", code)
		record.MarkAsFailed(&code, resp.Body, attemptErr, now)
	}
	logger.DeliveryLog("webhook", record.NotificationID, attemptErr,
		"webhook_id", record.ID,
		"status", record.Status,
		"attempt", record.RetryCount,
	)

	if err := s.deliveryRepo.UpdateWebhook(db, record); err != nil {
		logger.CtxWithError(ctx, "failed to save webhook delivery", err, "webhook_id", record.ID)
	}
}

// ============================================
// Aggregate status
// ============================================

type deliveryOutcome int

const (
	outcomeInFlight deliveryOutcome = iota
	outcomeSuccess
	outcomeFailed
)

// aggregateStatus folds the per-record outcomes into the notification
// status. ok is false while any record can still change.
func aggregateStatus(outcomes []deliveryOutcome) (status models.NotificationStatus, ok bool) {
	if len(outcomes) == 0 {
		return models.NotificationDelivered, true
	}
	succeeded := false
	for _, o := range outcomes {
		switch o {
		case outcomeInFlight:
			return models.NotificationSent, false
		case outcomeSuccess:
			succeeded = true
		}
	}
	if succeeded {
		return models.NotificationDelivered, true
	}
	return models.NotificationFailed, true
}

func emailOutcome(r *models.EmailNotification) deliveryOutcome {
	switch {
	case r.Status == models.EmailPending:
		return outcomeInFlight
	case r.IsSuccess():
		return outcomeSuccess
	}
	return outcomeFailed
}

func pushOutcome(r *models.PushNotification) deliveryOutcome {
	switch {
	case r.Status == models.PushPending:
		return outcomeInFlight
	case r.IsSuccess():
		return outcomeSuccess
	}
	return outcomeFailed
}

func webhookOutcome(r *models.WebhookNotification) deliveryOutcome {
	switch r.Status {
	case models.WebhookDelivered:
		return outcomeSuccess
	case models.WebhookFailed:
		return outcomeFailed
	}
	return outcomeInFlight
}

// refreshAggregate only moves notifications that are still sent; user
// actions such as read or archive take precedence.
func (s *deliveryService) refreshAggregate(db *gorm.DB, notificationID string) error {
	var outcomes []deliveryOutcome

	if r, err := s.deliveryRepo.FindEmailByNotification(db, notificationID); err == nil {
		outcomes = append(outcomes, emailOutcome(r))
	} else if !errors.Is(err, repositories.ErrDeliveryNotFound) {
		return apperrors.InternalError(err)
	}
	if r, err := s.deliveryRepo.FindPushByNotification(db, notificationID); err == nil {
		outcomes = append(outcomes, pushOutcome(r))
	} else if !errors.Is(err, repositories.ErrDeliveryNotFound) {
		return apperrors.InternalError(err)
	}
	if r, err := s.deliveryRepo.FindWebhookByNotification(db, notificationID); err == nil {
		outcomes = append(outcomes, webhookOutcome(r))
	} else if !errors.Is(err, repositories.ErrDeliveryNotFound) {
		return apperrors.InternalError(err)
	}

	status, ok := aggregateStatus(outcomes)
	if !ok {
		return nil
	}

	fields := map[string]interface{}{}
	if status == models.NotificationDelivered {
		fields["delivered_at"] = models.Now()
	}
	if _, err := s.notificationRepo.UpdateStatusIf(db, notificationID, models.NotificationSent, status, fields); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// ============================================
// Retries and scheduling
// ============================================

// RetryWebhook performs the next attempt of a due webhook record. It reports
// false when the record was not due or another worker claimed it first.
func (s *deliveryService) RetryWebhook(ctx context.Context, db *gorm.DB, webhookID string) (bool, error) {
	return s.retryWebhook(ctx, db, webhookID, models.Now())
}

func (s *deliveryService) retryWebhook(ctx context.Context, db *gorm.DB, webhookID string, now time.Time) (bool, error) {
	claimed, err := s.deliveryRepo.ClaimWebhookRetry(db, webhookID, now)
	if err != nil {
		return false, apperrors.InternalError(err)
	}
	if !claimed {
		return false, nil
	}

	record, err := s.deliveryRepo.FindWebhookByID(db, webhookID)
	if err != nil {
		return false, handleNotificationError(err)
	}
	s.attemptWebhook(ctx, db, record)

	if err := s.refreshAggregate(db, record.NotificationID); err != nil {
		return true, err
	}
	return true, nil
}

func (s *deliveryService) ProcessDueWebhookRetries(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int, error) {
	ids, err := s.deliveryRepo.FindDueWebhookIDs(db, now, limit)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		ok, err := s.retryWebhook(ctx, db, id, now)
		if err != nil {
			logger.WorkerLog("webhook_retry", "retry", err, "webhook_id", id)
			continue
		}
		if ok {
			processed++
		}
	}
	return processed, nil
}

func (s *deliveryService) DispatchDueScheduled(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int, error) {
	due, err := s.notificationRepo.FindDueScheduled(db, now, limit)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}

	dispatched := 0
	for i := range due {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}
		id := due[i].ID
		if s.dispatcher != nil {
			err = s.dispatcher.Dispatch(ctx, id)
		} else {
			err = s.Deliver(ctx, db, id)
		}
		if err != nil {
			logger.WorkerLog("scheduled_notifications", "dispatch", err, "notification_id", id)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ============================================
// Provider events
// ============================================

func (s *deliveryService) RecordEmailEvent(db *gorm.DB, notificationID, event, bounceType string) (*models.EmailNotification, error) {
	record, err := s.deliveryRepo.FindEmailByNotification(db, notificationID)
	if err != nil {
		return nil, handleNotificationError(err)
	}

	now := models.Now()
	switch event {
	case "delivered":
		record.MarkAsDelivered(now)
	case "opened":
		record.MarkAsOpened(now)
	case "clicked":
		record.MarkAsClicked(now)
	case "bounced":
		record.MarkAsBounced(bounceType, now)
	case "unsubscribed":
		record.MarkAsUnsubscribed()
	default:
		return nil, apperrors.FieldError("event", "Unknown email event")
	}

	if err := s.deliveryRepo.UpdateEmail(db, record); err != nil {
		return nil, handleNotificationError(err)
	}
	if err := s.refreshAggregate(db, notificationID); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *deliveryService) RecordPushEvent(db *gorm.DB, notificationID, event, errorMessage string) (*models.PushNotification, error) {
	record, err := s.deliveryRepo.FindPushByNotification(db, notificationID)
	if err != nil {
		return nil, handleNotificationError(err)
	}

	now := models.Now()
	switch event {
	case "delivered":
		record.MarkAsDelivered(now)
	case "clicked":
		record.MarkAsClicked(now)
	case "failed":
		var cause error
		if errorMessage != "" {
			cause = errors.New(errorMessage)
		}
		record.MarkAsFailed(cause, now)
	default:
		return nil, apperrors.FieldError("event", "Unknown push event")
	}

	if err := s.deliveryRepo.UpdatePush(db, record); err != nil {
		return nil, handleNotificationError(err)
	}
	if err := s.refreshAggregate(db, notificationID); err != nil {
		return nil, err
	}
	return record, nil
}
