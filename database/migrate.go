package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"messaging_backend/internal/config"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	chatmodels "messaging_backend/internal/models/chat"
)

const messageTimelineIndex = "idx_message_conversation_created"

// Dialector picks the gorm driver for the configured database.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres", "":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect opens the database with the slog-backed gorm logger and pool limits.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	slow := time.Duration(cfg.Database.SlowQueryMs) * time.Millisecond
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(cfg.Server.Env, slow),
		TranslateError: true,
		NowFunc:        models.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.NotificationCategory{},
		&models.NotificationChannel{},
		&models.Notification{},
		&models.NotificationPreference{},
		&models.EmailNotification{},
		&models.PushNotification{},
		&models.WebhookNotification{},
		// chat
		&chatmodels.Conversation{},
		&chatmodels.ConversationParticipant{},
		&chatmodels.MessageThread{},
		&chatmodels.Message{},
		&chatmodels.MessageAttachment{},
	}
}

// AutoMigrate creates or updates the schema on any supported driver.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	// Listing messages reads (conversation_id, created_at) ordered by time.
	if !db.Migrator().HasIndex(&chatmodels.Message{}, messageTimelineIndex) {
		stmt := fmt.Sprintf("CREATE INDEX %s ON messages (conversation_id, created_at)", messageTimelineIndex)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", messageTimelineIndex, err)
		}
	}

	logger.Info("database migrated", "tables", len(Models()))
	return nil
}
