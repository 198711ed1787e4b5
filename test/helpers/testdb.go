package helpers

import (
	"fmt"
	"testing"
	"time"

	"messaging_backend/database"
	"messaging_backend/internal/auth"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultPassword is the raw password of every user created by CreateUser.
const DefaultPassword = "password123"

// NewTestDB opens a migrated in-memory sqlite database. A single connection
// keeps every query on the same in-memory schema.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        models.Now,
	})
	require.NoError(t, err, "failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// CreateUser stores an active user with DefaultPassword.
func CreateUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(DefaultPassword)
	require.NoError(t, err)

	user := models.NewUser(fmt.Sprintf("user_%s@test.com", uuid.NewString()[:8]), hash, role)
	user.IsVerified = true
	require.NoError(t, db.Create(user).Error, "failed to create user")
	return user
}

func CreateStaff(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := CreateUser(t, db, models.UserRoleAdmin)
	user.IsStaff = true
	require.NoError(t, db.Save(user).Error)
	return user
}

// CreateConversation stores a conversation created by creator with every
// member as participant. The creator is an admin participant.
func CreateConversation(t *testing.T, db *gorm.DB, convType chat.ConversationType, creator *models.User, members ...*models.User) *chat.Conversation {
	t.Helper()

	conversation := chat.NewConversation(convType, creator.ID, chat.Limits{
		GroupMaxParticipants:   256,
		ChannelMaxParticipants: 1000,
	})
	conversation.Name = fmt.Sprintf("%s conversation", convType)
	require.NoError(t, db.Omit("Participants").Create(conversation).Error)

	AddParticipant(t, db, conversation, creator, true)
	for _, member := range members {
		AddParticipant(t, db, conversation, member, false)
	}
	return conversation
}

func AddParticipant(t *testing.T, db *gorm.DB, conversation *chat.Conversation, user *models.User, isAdmin bool) *chat.ConversationParticipant {
	t.Helper()

	participant := &chat.ConversationParticipant{
		ConversationID: conversation.ID,
		UserID:         user.ID,
		JoinedAt:       time.Now().UTC(),
		IsAdmin:        isAdmin,
	}
	require.NoError(t, db.Omit("User").Create(participant).Error)
	return participant
}

// CreateMessage stores a text message without going through the service layer.
func CreateMessage(t *testing.T, db *gorm.DB, conversation *chat.Conversation, sender *models.User, content string) *chat.Message {
	t.Helper()

	message := &chat.Message{
		ConversationID: conversation.ID,
		SenderID:       sender.ID,
		Content:        content,
		MessageType:    chat.MessageText,
	}
	require.NoError(t, db.Omit("Thread", "Attachments").Create(message).Error)
	return message
}

func CreateChannel(t *testing.T, db *gorm.DB, channelType models.ChannelType, config []byte) *models.NotificationChannel {
	t.Helper()

	channel := &models.NotificationChannel{
		Name:        fmt.Sprintf("%s-%s", channelType, uuid.NewString()[:8]),
		ChannelType: channelType,
		IsActive:    true,
		Config:      config,
	}
	require.NoError(t, db.Create(channel).Error)
	return channel
}

func CreateCategory(t *testing.T, db *gorm.DB, name string) *models.NotificationCategory {
	t.Helper()

	category := &models.NotificationCategory{Name: name, IsActive: true}
	require.NoError(t, db.Create(category).Error)
	return category
}
