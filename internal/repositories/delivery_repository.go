package repositories

import (
	"errors"
	"time"

	"messaging_backend/internal/models"

	"gorm.io/gorm"
)

var ErrDeliveryNotFound = errors.New("delivery record not found")

// DeliveryRepository stores the per-channel delivery records of notifications.
type DeliveryRepository interface {
	// Email
	CreateEmail(db *gorm.DB, record *models.EmailNotification) error
	FindEmailByNotification(db *gorm.DB, notificationID string) (*models.EmailNotification, error)
	UpdateEmail(db *gorm.DB, record *models.EmailNotification) error

	// Push
	CreatePush(db *gorm.DB, record *models.PushNotification) error
	FindPushByNotification(db *gorm.DB, notificationID string) (*models.PushNotification, error)
	UpdatePush(db *gorm.DB, record *models.PushNotification) error

	// Webhook
	CreateWebhook(db *gorm.DB, record *models.WebhookNotification) error
	FindWebhookByID(db *gorm.DB, id string) (*models.WebhookNotification, error)
	FindWebhookByNotification(db *gorm.DB, notificationID string) (*models.WebhookNotification, error)
	UpdateWebhook(db *gorm.DB, record *models.WebhookNotification) error
	ClaimWebhookRetry(db *gorm.DB, id string, now time.Time) (bool, error)
	ClaimWebhookPending(db *gorm.DB, id string, now time.Time) (bool, error)
	FindDueWebhookIDs(db *gorm.DB, now time.Time, limit int) ([]string, error)
}

type DeliveryRepositoryImpl struct{}

func NewDeliveryRepository() DeliveryRepository {
	return &DeliveryRepositoryImpl{}
}

// ============================================
// Email
// ============================================

func (r *DeliveryRepositoryImpl) CreateEmail(db *gorm.DB, record *models.EmailNotification) error {
	return db.Create(record).Error
}

func (r *DeliveryRepositoryImpl) FindEmailByNotification(db *gorm.DB, notificationID string) (*models.EmailNotification, error) {
	var record models.EmailNotification
	if err := db.Where("notification_id = ?", notificationID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *DeliveryRepositoryImpl) UpdateEmail(db *gorm.DB, record *models.EmailNotification) error {
	return saveRecord(db, record)
}

// ============================================
// Push
// ============================================

func (r *DeliveryRepositoryImpl) CreatePush(db *gorm.DB, record *models.PushNotification) error {
	return db.Create(record).Error
}

func (r *DeliveryRepositoryImpl) FindPushByNotification(db *gorm.DB, notificationID string) (*models.PushNotification, error) {
	var record models.PushNotification
	if err := db.Where("notification_id = ?", notificationID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *DeliveryRepositoryImpl) UpdatePush(db *gorm.DB, record *models.PushNotification) error {
	return saveRecord(db, record)
}

// ============================================
// Webhook
// ============================================

func (r *DeliveryRepositoryImpl) CreateWebhook(db *gorm.DB, record *models.WebhookNotification) error {
	return db.Create(record).Error
}

func (r *DeliveryRepositoryImpl) FindWebhookByID(db *gorm.DB, id string) (*models.WebhookNotification, error) {
	var record models.WebhookNotification
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *DeliveryRepositoryImpl) FindWebhookByNotification(db *gorm.DB, notificationID string) (*models.WebhookNotification, error) {
	var record models.WebhookNotification
	if err := db.Where("notification_id = ?", notificationID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *DeliveryRepositoryImpl) UpdateWebhook(db *gorm.DB, record *models.WebhookNotification) error {
	return saveRecord(db, record)
}

// ClaimWebhookRetry flips a due retried record to sent. Exactly one caller
// gets true for a given record and retry slot.
func (r *DeliveryRepositoryImpl) ClaimWebhookRetry(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.WebhookNotification{}).
		Where("id = ? AND status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", id, models.WebhookRetried, now).
		Updates(map[string]interface{}{
			"status":  models.WebhookSent,
			"sent_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimWebhookPending is the first-attempt counterpart of ClaimWebhookRetry.
func (r *DeliveryRepositoryImpl) ClaimWebhookPending(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.WebhookNotification{}).
		Where("id = ? AND status = ?", id, models.WebhookPending).
		Updates(map[string]interface{}{
			"status":  models.WebhookSent,
			"sent_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *DeliveryRepositoryImpl) FindDueWebhookIDs(db *gorm.DB, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.Model(&models.WebhookNotification{}).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.WebhookRetried, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func saveRecord(db *gorm.DB, record interface{}) error {
	result := db.Select("*").Omit("id", "created_at").Updates(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}
