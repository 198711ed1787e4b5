package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"messaging_backend/internal/email"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessagesCategory groups the notifications created for new chat messages.
const MessagesCategory = "messages"

const messagePreviewLength = 100

type NotificationService interface {
	// Dispatch
	Create(ctx context.Context, db *gorm.DB, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error)
	NotifyNewMessage(ctx context.Context, db *gorm.DB, message *chat.Message, recipientIDs []string) error

	// User actions
	Get(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)
	List(db *gorm.DB, userID string, criteria dto.NotificationCriteria) (*dto.NotificationListResponse, error)
	UnreadCount(db *gorm.DB, userID string) (int64, error)
	MarkAsRead(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)
	MarkAsClicked(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)
	Dismiss(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)
	Archive(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error)
	MarkAllRead(db *gorm.DB, userID string) (int64, error)
	DeleteRead(db *gorm.DB, userID string) (int64, error)

	// Categories and channels
	CreateCategory(db *gorm.DB, req *dto.CreateCategoryRequest) (*dto.CategoryResponse, error)
	ListCategories(db *gorm.DB, activeOnly bool) ([]*dto.CategoryResponse, error)
	CreateChannel(db *gorm.DB, req *dto.CreateChannelRequest) (*dto.ChannelResponse, error)
	ListChannels(db *gorm.DB, activeOnly bool) ([]*dto.ChannelResponse, error)

	// Preferences
	GetPreferences(db *gorm.DB, userID string) ([]*dto.PreferenceResponse, error)
	UpdatePreference(db *gorm.DB, userID string, req *dto.UpdatePreferenceRequest) (*dto.PreferenceResponse, error)
}

type NotificationSettings struct {
	FromEmail string
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	deliveryRepo     repositories.DeliveryRepository
	userRepo         repositories.UserRepository
	dispatcher       Dispatcher
	publisher        MessagePublisher
	renderer         email.TemplateRenderer
	settings         NotificationSettings
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	deliveryRepo repositories.DeliveryRepository,
	userRepo repositories.UserRepository,
	dispatcher Dispatcher,
	publisher MessagePublisher,
	renderer email.TemplateRenderer,
	settings NotificationSettings,
) NotificationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if renderer == nil {
		renderer = email.NewTemplateManager()
	}
	return &notificationService{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		userRepo:         userRepo,
		dispatcher:       dispatcher,
		publisher:        publisher,
		renderer:         renderer,
		settings:         settings,
	}
}

// ============================================
// Dispatch
// ============================================

// Create stores the notification with one delivery record per transport the
// recipient accepts, then hands it to the dispatcher unless it is scheduled
// for later. Dispatch errors are logged; the notification is already saved.
func (s *notificationService) Create(ctx context.Context, db *gorm.DB, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error) {
	now := models.Now()

	priority := models.NotificationPriority(req.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.IsValid() {
		return nil, apperrors.FieldError("priority", "Unknown priority")
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, apperrors.FieldError("expires_at", "Must be in the future")
		}
		if req.ScheduledAt != nil && !req.ExpiresAt.After(*req.ScheduledAt) {
			return nil, apperrors.FieldError("expires_at", "Must be after scheduled_at")
		}
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	recipient, err := s.userRepo.FindByID(tx, req.RecipientID)
	if err != nil {
		return nil, handleNotificationError(err)
	}

	category, err := s.resolveCategory(tx, req)
	if err != nil {
		return nil, err
	}

	channels, err := s.notificationRepo.FindChannelsByIDs(tx, uniqueExcluding(req.ChannelIDs, ""))
	if err != nil {
		return nil, handleNotificationError(err)
	}
	active := make([]models.NotificationChannel, 0, len(channels))
	for _, ch := range channels {
		if ch.IsActive {
			active = append(active, ch)
		}
	}

	notification := &models.Notification{
		RecipientID:       recipient.ID,
		SenderID:          req.SenderID,
		Title:             req.Title,
		Message:           req.Message,
		Priority:          priority,
		RelatedObjectType: req.RelatedObjectType,
		RelatedObjectID:   req.RelatedObjectID,
		ActionURL:         req.ActionURL,
		ImageURL:          req.ImageURL,
		Status:            models.NotificationPending,
		Channels:          active,
		ScheduledAt:       req.ScheduledAt,
		ExpiresAt:         req.ExpiresAt,
	}
	if category != nil {
		notification.CategoryID = &category.ID
	}
	if len(req.ExtraData) > 0 {
		extra, err := json.Marshal(req.ExtraData)
		if err != nil {
			return nil, apperrors.FieldError("extra_data", "Must be a JSON object")
		}
		notification.ExtraData = datatypes.JSON(extra)
	}

	if err := s.notificationRepo.CreateNotification(tx, notification); err != nil {
		return nil, handleNotificationError(err)
	}

	preference, err := s.preferenceFor(tx, recipient.ID, category)
	if err != nil {
		return nil, err
	}
	if err := s.createDeliveryRecords(tx, notification, recipient, category, preference, active, req); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	notification.Category = category

	resp := dto.NewNotificationResponse(notification)
	if !notification.IsScheduled(now) {
		s.publisher.PublishToUsers([]string{recipient.ID}, RealtimeEvent{Type: EventNotification, Data: resp})
		if s.dispatcher != nil {
			if err := s.dispatcher.Dispatch(ctx, notification.ID); err != nil {
				logger.CtxWithError(ctx, "failed to dispatch notification", err, "notification_id", notification.ID)
			}
		}
	}
	return resp, nil
}

func (s *notificationService) resolveCategory(tx *gorm.DB, req *dto.CreateNotificationRequest) (*models.NotificationCategory, error) {
	switch {
	case req.CategoryID != nil && *req.CategoryID != "":
		category, err := s.notificationRepo.FindCategoryByID(tx, *req.CategoryID)
		if err != nil {
			return nil, handleNotificationError(err)
		}
		return category, nil
	case req.CategoryName != "":
		category, err := s.notificationRepo.FindCategoryByName(tx, req.CategoryName)
		if err != nil {
			return nil, handleNotificationError(err)
		}
		return category, nil
	}
	return nil, nil
}

// preferenceFor returns the stored preference or the defaults. Notifications
// without a category only follow the defaults.
func (s *notificationService) preferenceFor(tx *gorm.DB, userID string, category *models.NotificationCategory) (*models.NotificationPreference, error) {
	if category == nil {
		return models.DefaultPreference(userID, ""), nil
	}
	preference, err := s.notificationRepo.FindPreference(tx, userID, category.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrPreferenceNotFound) {
			return models.DefaultPreference(userID, category.ID), nil
		}
		return nil, apperrors.InternalError(err)
	}
	return preference, nil
}

// createDeliveryRecords writes at most one record per transport. Email and
// push also need the user's global switch and the category preference;
// webhook channels are integrations and ignore personal preferences.
func (s *notificationService) createDeliveryRecords(
	tx *gorm.DB,
	notification *models.Notification,
	recipient *models.User,
	category *models.NotificationCategory,
	preference *models.NotificationPreference,
	channels []models.NotificationChannel,
	req *dto.CreateNotificationRequest,
) error {
	now := models.Now()
	personal := preference.ShouldReceive(now)
	created := make(map[string]bool)

	for _, channel := range channels {
		cfg := decodeChannelConfig(channel.Config)

		switch channel.ChannelType {
		case models.ChannelEmail:
			if created["email"] || !personal || !preference.AllowsChannel(models.ChannelEmail) || !recipient.EmailNotifications {
				continue
			}
			record, err := s.buildEmailRecord(notification, recipient, category, cfg)
			if err != nil {
				return err
			}
			if err := s.deliveryRepo.CreateEmail(tx, record); err != nil {
				return apperrors.InternalError(err)
			}
			created["email"] = true

		case models.ChannelPush:
			if created["push"] || !personal || !preference.AllowsChannel(models.ChannelPush) || !recipient.PushNotifications {
				continue
			}
			platform := models.PushPlatform(req.Platform)
			if platform == "" {
				platform = models.PlatformWeb
			}
			record := &models.PushNotification{
				NotificationID: notification.ID,
				DeviceToken:    req.DeviceToken,
				Platform:       platform,
				Title:          notification.Title,
				Body:           notification.Message,
				Data:           notification.ExtraData,
				Status:         models.PushPending,
			}
			if err := s.deliveryRepo.CreatePush(tx, record); err != nil {
				return apperrors.InternalError(err)
			}
			created["push"] = true

		case models.ChannelWebhook, models.ChannelSlack, models.ChannelDiscord, models.ChannelTeams:
			if created["webhook"] || cfg.URL == "" {
				continue
			}
			record, err := buildWebhookRecord(notification, category, cfg)
			if err != nil {
				return err
			}
			if err := s.deliveryRepo.CreateWebhook(tx, record); err != nil {
				return apperrors.InternalError(err)
			}
			created["webhook"] = true

		default:
			logger.Debug("channel has no transport", "channel", channel.Name, "type", channel.ChannelType)
		}
	}
	return nil
}

func (s *notificationService) buildEmailRecord(notification *models.Notification, recipient *models.User, category *models.NotificationCategory, cfg models.ChannelConfig) (*models.EmailNotification, error) {
	data := email.TemplateData{
		"Title":     notification.Title,
		"Message":   notification.Message,
		"ActionURL": notification.ActionURL,
	}
	if category != nil {
		data["Category"] = category.Name
	}
	html, err := s.renderer.Render(email.NotificationTemplate, data)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	from := cfg.FromEmail
	if from == "" {
		from = s.settings.FromEmail
	}
	return &models.EmailNotification{
		NotificationID: notification.ID,
		ToEmail:        recipient.Email,
		FromEmail:      from,
		Subject:        notification.Title,
		HTMLContent:    html,
		TextContent:    notification.Message,
		Status:         models.EmailPending,
	}, nil
}

// webhookPayload is the JSON body posted to webhook channels.
type webhookPayload struct {
	ID                string          `json:"id"`
	RecipientID       string          `json:"recipient_id"`
	Title             string          `json:"title"`
	Message           string          `json:"message"`
	Category          string          `json:"category,omitempty"`
	Priority          string          `json:"priority"`
	RelatedObjectType string          `json:"related_object_type,omitempty"`
	RelatedObjectID   string          `json:"related_object_id,omitempty"`
	ActionURL         string          `json:"action_url,omitempty"`
	ExtraData         json.RawMessage `json:"extra_data,omitempty"`
	CreatedAt         string          `json:"created_at"`
}

func buildWebhookRecord(notification *models.Notification, category *models.NotificationCategory, cfg models.ChannelConfig) (*models.WebhookNotification, error) {
	payload := webhookPayload{
		ID:                notification.ID,
		RecipientID:       notification.RecipientID,
		Title:             notification.Title,
		Message:           notification.Message,
		Priority:          string(notification.Priority),
		RelatedObjectType: notification.RelatedObjectType,
		RelatedObjectID:   notification.RelatedObjectID,
		ActionURL:         notification.ActionURL,
		CreatedAt:         notification.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if category != nil {
		payload.Category = category.Name
	}
	if len(notification.ExtraData) > 0 {
		payload.ExtraData = json.RawMessage(notification.ExtraData)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	record := &models.WebhookNotification{
		NotificationID: notification.ID,
		URL:            cfg.URL,
		Method:         strings.ToUpper(cfg.Method),
		Payload:        datatypes.JSON(body),
		Status:         models.WebhookPending,
		MaxRetries:     cfg.MaxRetries,
	}
	if record.Method == "" {
		record.Method = "POST"
	}
	if record.MaxRetries <= 0 {
		record.MaxRetries = models.DefaultWebhookMaxRetries
	}
	if len(cfg.Headers) > 0 {
		headers, err := json.Marshal(cfg.Headers)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		record.Headers = datatypes.JSON(headers)
	}
	return record, nil
}

func decodeChannelConfig(raw datatypes.JSON) models.ChannelConfig {
	var cfg models.ChannelConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			logger.WithError(err).Warn("ignoring malformed channel config")
		}
	}
	return cfg
}

// NotifyNewMessage creates one notification per recipient through every
// active email and push channel.
func (s *notificationService) NotifyNewMessage(ctx context.Context, db *gorm.DB, message *chat.Message, recipientIDs []string) error {
	category, err := s.ensureCategory(db, MessagesCategory, "New chat messages")
	if err != nil {
		return err
	}

	channels, err := s.notificationRepo.FindChannels(db, true)
	if err != nil {
		return apperrors.InternalError(err)
	}
	channelIDs := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.ChannelType == models.ChannelEmail || ch.ChannelType == models.ChannelPush {
			channelIDs = append(channelIDs, ch.ID)
		}
	}

	title := "New message"
	if sender, err := s.userRepo.FindByID(db, message.SenderID); err == nil {
		title = fmt.Sprintf("New message from %s", sender.DisplayName())
	}
	priority := models.PriorityNormal
	switch {
	case message.IsUrgent:
		priority = models.PriorityUrgent
	case message.IsImportant:
		priority = models.PriorityHigh
	}

	var errs []error
	for _, recipientID := range recipientIDs {
		_, err := s.Create(ctx, db, &dto.CreateNotificationRequest{
			RecipientID:       recipientID,
			SenderID:          &message.SenderID,
			Title:             title,
			Message:           preview(message.Content),
			CategoryID:        &category.ID,
			Priority:          string(priority),
			RelatedObjectType: "message",
			RelatedObjectID:   message.ID,
			ActionURL:         fmt.Sprintf("/conversations/%s", message.ConversationID),
			ExtraData:         map[string]interface{}{"conversation_id": message.ConversationID},
			ChannelIDs:        channelIDs,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", recipientID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *notificationService) ensureCategory(db *gorm.DB, name, description string) (*models.NotificationCategory, error) {
	category, err := s.notificationRepo.FindCategoryByName(db, name)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, repositories.ErrCategoryNotFound) {
		return nil, apperrors.InternalError(err)
	}

	category = &models.NotificationCategory{Name: name, Description: description, IsActive: true}
	if err := s.notificationRepo.CreateCategory(db, category); err != nil {
		if errors.Is(err, repositories.ErrCategoryExists) {
			return s.notificationRepo.FindCategoryByName(db, name)
		}
		return nil, apperrors.InternalError(err)
	}
	return category, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= messagePreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:messagePreviewLength]) + "…"
}

// ============================================
// User actions
// ============================================

func (s *notificationService) Get(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error) {
	notification, err := s.notificationRepo.FindUserNotification(db, notificationID, userID)
	if err != nil {
		return nil, handleNotificationError(err)
	}

	resp := dto.NewNotificationResponse(notification)
	deliveries := &dto.DeliveryResponse{}
	if record, err := s.deliveryRepo.FindEmailByNotification(db, notification.ID); err == nil {
		deliveries.Email = record
	}
	if record, err := s.deliveryRepo.FindPushByNotification(db, notification.ID); err == nil {
		deliveries.Push = record
	}
	if record, err := s.deliveryRepo.FindWebhookByNotification(db, notification.ID); err == nil {
		deliveries.Webhook = record
	}
	if deliveries.Email != nil || deliveries.Push != nil || deliveries.Webhook != nil {
		resp.Deliveries = deliveries
	}
	return resp, nil
}

func (s *notificationService) List(db *gorm.DB, userID string, criteria dto.NotificationCriteria) (*dto.NotificationListResponse, error) {
	now := models.Now()
	page, pageSize := criteria.Normalize()
	notifications, total, err := s.notificationRepo.FindUserNotifications(db, userID, repositories.NotificationCriteria{
		Status:         models.NotificationStatus(criteria.Status),
		CategoryID:     criteria.CategoryID,
		UnreadOnly:     criteria.UnreadOnly,
		IncludeExpired: criteria.IncludeExpired,
		Now:            now,
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	unread, err := s.notificationRepo.GetUnreadCount(db, userID, now)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := &dto.NotificationListResponse{
		Notifications: make([]*dto.NotificationResponse, 0, len(notifications)),
		Total:         total,
		UnreadCount:   unread,
		Page:          page,
		PageSize:      pageSize,
	}
	for i := range notifications {
		resp.Notifications = append(resp.Notifications, dto.NewNotificationResponse(&notifications[i]))
	}
	return resp, nil
}

func (s *notificationService) UnreadCount(db *gorm.DB, userID string) (int64, error) {
	count, err := s.notificationRepo.GetUnreadCount(db, userID, models.Now())
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

func (s *notificationService) MarkAsRead(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error) {
	return s.apply(db, userID, notificationID, (*models.Notification).MarkAsRead)
}

func (s *notificationService) MarkAsClicked(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error) {
	return s.apply(db, userID, notificationID, (*models.Notification).MarkAsClicked)
}

func (s *notificationService) Dismiss(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error) {
	return s.apply(db, userID, notificationID, func(n *models.Notification, now time.Time) error {
		n.Dismiss(now)
		return nil
	})
}

func (s *notificationService) Archive(db *gorm.DB, userID, notificationID string) (*dto.NotificationResponse, error) {
	return s.apply(db, userID, notificationID, func(n *models.Notification, _ time.Time) error {
		n.Archive()
		return nil
	})
}

func (s *notificationService) apply(db *gorm.DB, userID, notificationID string, action func(*models.Notification, time.Time) error) (*dto.NotificationResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	notification, err := s.notificationRepo.FindUserNotification(tx, notificationID, userID)
	if err != nil {
		return nil, handleNotificationError(err)
	}
	if err := action(notification, models.Now()); err != nil {
		return nil, handleNotificationError(err)
	}
	if err := s.notificationRepo.UpdateNotification(tx, notification); err != nil {
		return nil, handleNotificationError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(db *gorm.DB, userID string) (int64, error) {
	count, err := s.notificationRepo.MarkAllAsRead(db, userID, models.Now())
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

// DeleteRead hard-deletes read notifications together with their delivery
// records and channel links.
func (s *notificationService) DeleteRead(db *gorm.DB, userID string) (int64, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return 0, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	count, err := s.notificationRepo.DeleteReadNotifications(tx, userID)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

// ============================================
// Categories and channels
// ============================================

func (s *notificationService) CreateCategory(db *gorm.DB, req *dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	category := &models.NotificationCategory{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		SortOrder:   req.SortOrder,
		IsActive:    true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	if err := s.notificationRepo.CreateCategory(db, category); err != nil {
		return nil, handleNotificationError(err)
	}
	return dto.NewCategoryResponse(category), nil
}

func (s *notificationService) ListCategories(db *gorm.DB, activeOnly bool) ([]*dto.CategoryResponse, error) {
	categories, err := s.notificationRepo.FindCategories(db, activeOnly)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	result := make([]*dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		result = append(result, dto.NewCategoryResponse(&categories[i]))
	}
	return result, nil
}

func (s *notificationService) CreateChannel(db *gorm.DB, req *dto.CreateChannelRequest) (*dto.ChannelResponse, error) {
	channelType := models.ChannelType(req.ChannelType)
	if !channelType.IsValid() {
		return nil, apperrors.FieldError("channel_type", "Unknown channel type")
	}

	var cfg models.ChannelConfig
	if req.Config != nil {
		cfg = models.ChannelConfig{
			URL:        req.Config.URL,
			Method:     req.Config.Method,
			Headers:    req.Config.Headers,
			MaxRetries: req.Config.MaxRetries,
			FromEmail:  req.Config.FromEmail,
		}
	}
	switch channelType {
	case models.ChannelWebhook, models.ChannelSlack, models.ChannelDiscord, models.ChannelTeams:
		if cfg.URL == "" {
			return nil, apperrors.FieldError("config.url", "Webhook channels need a target URL")
		}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	channel := &models.NotificationChannel{
		Name:        strings.TrimSpace(req.Name),
		ChannelType: channelType,
		IsActive:    true,
		Config:      datatypes.JSON(raw),
	}
	if req.IsActive != nil {
		channel.IsActive = *req.IsActive
	}
	if err := s.notificationRepo.CreateChannel(db, channel); err != nil {
		return nil, handleNotificationError(err)
	}
	return dto.NewChannelResponse(channel), nil
}

func (s *notificationService) ListChannels(db *gorm.DB, activeOnly bool) ([]*dto.ChannelResponse, error) {
	channels, err := s.notificationRepo.FindChannels(db, activeOnly)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	result := make([]*dto.ChannelResponse, 0, len(channels))
	for i := range channels {
		result = append(result, dto.NewChannelResponse(&channels[i]))
	}
	return result, nil
}

// ============================================
// Preferences
// ============================================

// GetPreferences lists a preference for every active category, filling in
// defaults for categories the user never configured.
func (s *notificationService) GetPreferences(db *gorm.DB, userID string) ([]*dto.PreferenceResponse, error) {
	categories, err := s.notificationRepo.FindCategories(db, true)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	stored, err := s.notificationRepo.FindPreferencesByUser(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	byCategory := make(map[string]*models.NotificationPreference, len(stored))
	for i := range stored {
		byCategory[stored[i].CategoryID] = &stored[i]
	}

	result := make([]*dto.PreferenceResponse, 0, len(categories))
	for i := range categories {
		pref, ok := byCategory[categories[i].ID]
		if !ok {
			pref = models.DefaultPreference(userID, categories[i].ID)
		}
		pref.Category = &categories[i]
		result = append(result, dto.NewPreferenceResponse(pref))
	}
	return result, nil
}

func (s *notificationService) UpdatePreference(db *gorm.DB, userID string, req *dto.UpdatePreferenceRequest) (*dto.PreferenceResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	category, err := s.notificationRepo.FindCategoryByID(tx, req.CategoryID)
	if err != nil {
		return nil, handleNotificationError(err)
	}
	preference, err := s.preferenceFor(tx, userID, category)
	if err != nil {
		return nil, err
	}

	if req.EmailEnabled != nil {
		preference.EmailEnabled = *req.EmailEnabled
	}
	if req.PushEnabled != nil {
		preference.PushEnabled = *req.PushEnabled
	}
	if req.SMSEnabled != nil {
		preference.SMSEnabled = *req.SMSEnabled
	}
	if req.Frequency != "" {
		preference.Frequency = models.DeliveryFrequency(req.Frequency)
	}
	if req.QuietHoursEnabled != nil {
		preference.QuietHoursEnabled = *req.QuietHoursEnabled
	}
	if req.QuietHoursStart != nil {
		preference.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		preference.QuietHoursEnd = *req.QuietHoursEnd
	}
	if req.IsEnabled != nil {
		preference.IsEnabled = *req.IsEnabled
	}
	if req.DoNotDisturbUntil != nil {
		preference.DoNotDisturbUntil = req.DoNotDisturbUntil
	}

	if preference.QuietHoursEnabled {
		if _, err := models.ParseClock(preference.QuietHoursStart); err != nil {
			return nil, apperrors.FieldError("quiet_hours_start", "Use HH:MM")
		}
		if _, err := models.ParseClock(preference.QuietHoursEnd); err != nil {
			return nil, apperrors.FieldError("quiet_hours_end", "Use HH:MM")
		}
	}

	if err := s.notificationRepo.UpsertPreference(tx, preference); err != nil {
		return nil, apperrors.InternalError(err)
	}
	stored, err := s.notificationRepo.FindPreference(tx, userID, category.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	stored.Category = category
	return dto.NewPreferenceResponse(stored), nil
}
