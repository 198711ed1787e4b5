package repositories

import (
	"errors"
	"time"

	"messaging_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrCategoryNotFound     = errors.New("notification category not found")
	ErrChannelNotFound      = errors.New("notification channel not found")
	ErrPreferenceNotFound   = errors.New("notification preference not found")
	ErrCategoryExists       = errors.New("notification category already exists")
	ErrChannelExists        = errors.New("notification channel already exists")
)

type NotificationRepository interface {
	// Notification operations
	CreateNotification(db *gorm.DB, notification *models.Notification) error
	FindNotificationByID(db *gorm.DB, id string) (*models.Notification, error)
	FindUserNotification(db *gorm.DB, id, userID string) (*models.Notification, error)
	FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error)
	FindDueScheduled(db *gorm.DB, now time.Time, limit int) ([]models.Notification, error)
	UpdateNotification(db *gorm.DB, notification *models.Notification) error
	UpdateStatusIf(db *gorm.DB, id string, from, to models.NotificationStatus, fields map[string]interface{}) (bool, error)
	MarkAllAsRead(db *gorm.DB, userID string, at time.Time) (int64, error)
	DeleteReadNotifications(db *gorm.DB, userID string) (int64, error)
	GetUnreadCount(db *gorm.DB, userID string, now time.Time) (int64, error)

	// Category and channel operations
	CreateCategory(db *gorm.DB, category *models.NotificationCategory) error
	FindCategoryByID(db *gorm.DB, id string) (*models.NotificationCategory, error)
	FindCategoryByName(db *gorm.DB, name string) (*models.NotificationCategory, error)
	FindCategories(db *gorm.DB, activeOnly bool) ([]models.NotificationCategory, error)
	CreateChannel(db *gorm.DB, channel *models.NotificationChannel) error
	FindChannels(db *gorm.DB, activeOnly bool) ([]models.NotificationChannel, error)
	FindChannelsByIDs(db *gorm.DB, ids []string) ([]models.NotificationChannel, error)

	// Preference operations
	FindPreference(db *gorm.DB, userID, categoryID string) (*models.NotificationPreference, error)
	FindPreferencesByUser(db *gorm.DB, userID string) ([]models.NotificationPreference, error)
	UpsertPreference(db *gorm.DB, preference *models.NotificationPreference) error
}

type NotificationRepositoryImpl struct{}

type NotificationCriteria struct {
	Status         models.NotificationStatus
	CategoryID     string
	UnreadOnly     bool
	IncludeExpired bool
	Now            time.Time
	Page           int
	PageSize       int
}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

// ============================================
// Notification operations
// ============================================

// CreateNotification inserts the notification and its channel links. The
// channels themselves must already exist.
func (r *NotificationRepositoryImpl) CreateNotification(db *gorm.DB, notification *models.Notification) error {
	return db.Omit("Category", "Channels.*").Create(notification).Error
}

func (r *NotificationRepositoryImpl) FindNotificationByID(db *gorm.DB, id string) (*models.Notification, error) {
	var notification models.Notification
	err := db.Preload("Category").Preload("Channels").First(&notification, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepositoryImpl) FindUserNotification(db *gorm.DB, id, userID string) (*models.Notification, error) {
	var notification models.Notification
	err := db.Preload("Category").
		Where("id = ? AND recipient_id = ?", id, userID).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepositoryImpl) FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	query := db.Model(&models.Notification{}).Where("recipient_id = ?", userID)

	if criteria.Status != "" {
		query = query.Where("status = ?", criteria.Status)
	}
	if criteria.CategoryID != "" {
		query = query.Where("category_id = ?", criteria.CategoryID)
	}
	if criteria.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if !criteria.IncludeExpired {
		query = query.Where("expires_at IS NULL OR expires_at > ?", criteria.Now)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(criteria.Page, criteria.PageSize)
	err := query.Preload("Category").
		Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&notifications).Error
	return notifications, total, err
}

// FindDueScheduled returns pending notifications whose send time has passed.
func (r *NotificationRepositoryImpl) FindDueScheduled(db *gorm.DB, now time.Time, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := db.Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.NotificationPending, now).
		Where("is_dismissed = ?", false).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepositoryImpl) UpdateNotification(db *gorm.DB, notification *models.Notification) error {
	result := db.Model(notification).Select(
		"status", "sent_at", "delivered_at",
		"is_read", "read_at", "is_clicked", "clicked_at",
		"is_dismissed", "dismissed_at", "updated_at",
	).Updates(notification)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// UpdateStatusIf moves a notification from one status to another only if it
// is still in the expected status. Returns false when another writer won.
func (r *NotificationRepositoryImpl) UpdateStatusIf(db *gorm.DB, id string, from, to models.NotificationStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := db.Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(db *gorm.DB, userID string, at time.Time) (int64, error) {
	result := db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND status <> ?", userID, false, models.NotificationArchived).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
			"status":  models.NotificationRead,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) DeleteReadNotifications(db *gorm.DB, userID string) (int64, error) {
	var ids []string
	if err := db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, true).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, record := range []interface{}{
		&models.EmailNotification{}, &models.PushNotification{}, &models.WebhookNotification{},
	} {
		if err := db.Where("notification_id IN ?", ids).Delete(record).Error; err != nil {
			return 0, err
		}
	}
	if err := db.Exec("DELETE FROM notification_channel_links WHERE notification_id IN ?", ids).Error; err != nil {
		return 0, err
	}

	result := db.Where("id IN ?", ids).Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) GetUnreadCount(db *gorm.DB, userID string, now time.Time) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND status <> ?", userID, false, models.NotificationArchived).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	return count, err
}

// ============================================
// Category and channel operations
// ============================================

func (r *NotificationRepositoryImpl) CreateCategory(db *gorm.DB, category *models.NotificationCategory) error {
	if err := db.Create(category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrCategoryExists
		}
		return err
	}
	return nil
}

func (r *NotificationRepositoryImpl) FindCategoryByID(db *gorm.DB, id string) (*models.NotificationCategory, error) {
	var category models.NotificationCategory
	if err := db.First(&category, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (r *NotificationRepositoryImpl) FindCategoryByName(db *gorm.DB, name string) (*models.NotificationCategory, error) {
	var category models.NotificationCategory
	if err := db.Where("name = ?", name).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (r *NotificationRepositoryImpl) FindCategories(db *gorm.DB, activeOnly bool) ([]models.NotificationCategory, error) {
	var categories []models.NotificationCategory
	query := db.Model(&models.NotificationCategory{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("sort_order ASC, name ASC").Find(&categories).Error
	return categories, err
}

func (r *NotificationRepositoryImpl) CreateChannel(db *gorm.DB, channel *models.NotificationChannel) error {
	if err := db.Create(channel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrChannelExists
		}
		return err
	}
	return nil
}

func (r *NotificationRepositoryImpl) FindChannels(db *gorm.DB, activeOnly bool) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	query := db.Model(&models.NotificationChannel{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("name ASC").Find(&channels).Error
	return channels, err
}

func (r *NotificationRepositoryImpl) FindChannelsByIDs(db *gorm.DB, ids []string) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	if len(ids) == 0 {
		return channels, nil
	}
	if err := db.Where("id IN ?", ids).Find(&channels).Error; err != nil {
		return nil, err
	}
	if len(channels) != len(ids) {
		return nil, ErrChannelNotFound
	}
	return channels, nil
}

// ============================================
// Preference operations
// ============================================

func (r *NotificationRepositoryImpl) FindPreference(db *gorm.DB, userID, categoryID string) (*models.NotificationPreference, error) {
	var preference models.NotificationPreference
	err := db.Where("user_id = ? AND category_id = ?", userID, categoryID).First(&preference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}
	return &preference, nil
}

func (r *NotificationRepositoryImpl) FindPreferencesByUser(db *gorm.DB, userID string) ([]models.NotificationPreference, error) {
	var preferences []models.NotificationPreference
	err := db.Preload("Category").Where("user_id = ?", userID).Find(&preferences).Error
	return preferences, err
}

// UpsertPreference relies on the (user_id, category_id) unique index.
func (r *NotificationRepositoryImpl) UpsertPreference(db *gorm.DB, preference *models.NotificationPreference) error {
	return db.Omit("Category").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email_enabled", "push_enabled", "sms_enabled", "frequency",
			"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end",
			"is_enabled", "do_not_disturb_until", "updated_at",
		}),
	}).Create(preference).Error
}
