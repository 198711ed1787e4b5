package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"messaging_backend/internal/imageprocessor"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services/dto"
	"messaging_backend/internal/storage"
	"messaging_backend/pkg/apperrors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttachmentSettings struct {
	MaxSize   int64
	URLExpiry time.Duration
}

func DefaultAttachmentSettings() AttachmentSettings {
	return AttachmentSettings{
		MaxSize:   10 << 20,
		URLExpiry: 15 * time.Minute,
	}
}

type AttachmentService interface {
	Upload(ctx context.Context, db *gorm.DB, uploaderID, messageID string, file *multipart.FileHeader) (*dto.AttachmentResponse, error)
	ListForMessage(db *gorm.DB, messageID string) ([]*dto.AttachmentResponse, error)
	Get(db *gorm.DB, attachmentID string) (*chat.MessageAttachment, error)
	SoftDelete(db *gorm.DB, actorID, attachmentID string) error
	GetDownloadURL(ctx context.Context, db *gorm.DB, attachmentID string) (*dto.DownloadURLResponse, error)
}

type attachmentService struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	storage          storage.Storage
	processor        *imageprocessor.Processor
	settings         AttachmentSettings
}

func NewAttachmentService(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	store storage.Storage,
	processor *imageprocessor.Processor,
	settings AttachmentSettings,
) AttachmentService {
	if processor == nil {
		processor = imageprocessor.NewProcessor(0, 0)
	}
	if settings.URLExpiry <= 0 {
		settings.URLExpiry = DefaultAttachmentSettings().URLExpiry
	}
	return &attachmentService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		storage:          store,
		processor:        processor,
		settings:         settings,
	}
}

// Upload stores the file and records its metadata. Stored objects are removed
// again when the metadata cannot be persisted.
func (s *attachmentService) Upload(ctx context.Context, db *gorm.DB, uploaderID, messageID string, file *multipart.FileHeader) (*dto.AttachmentResponse, error) {
	if file == nil {
		return nil, apperrors.FieldError("file", "File is required")
	}
	if !chat.IsAllowedExtension(file.Filename) {
		return nil, apperrors.FieldError("file", fmt.Sprintf("File type .%s is not allowed", chat.Extension(file.Filename)))
	}
	if s.settings.MaxSize > 0 && file.Size > s.settings.MaxSize {
		return nil, apperrors.FieldError("file", fmt.Sprintf("File exceeds the %s limit", chat.HumanReadableSize(s.settings.MaxSize)))
	}

	message, err := s.messageRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, handleChatError(err)
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageDeleted
	}
	if message.SenderID != uploaderID {
		return nil, apperrors.NewForbiddenError("Only the sender can attach files to a message")
	}
	conversation, err := s.conversationRepo.FindConversationByID(db, message.ConversationID)
	if err != nil {
		return nil, handleChatError(err)
	}
	if !conversation.AllowFileSharing {
		return nil, apperrors.ErrFileSharingOff
	}

	src, err := file.Open()
	if err != nil {
		return nil, apperrors.InternalError(fmt.Errorf("failed to open uploaded file: %w", err))
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, apperrors.InternalError(fmt.Errorf("failed to detect mime type: %w", err))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.InternalError(err)
	}

	attachment := &chat.MessageAttachment{
		MessageID:  message.ID,
		UploadedBy: uploaderID,
		Filename:   file.Filename,
		FileType:   chat.FileTypeFromExtension(file.Filename),
		MimeType:   mtype.String(),
	}
	attachment.ID = uuid.NewString()
	attachment.FilePath = storage.AttachmentKey(message.ID, attachment.ID, file.Filename)

	if err := s.storage.Save(ctx, attachment.FilePath, src, attachment.MimeType); err != nil {
		return nil, apperrors.InternalError(fmt.Errorf("failed to store attachment: %w", err))
	}
	stored := []string{attachment.FilePath}

	size, err := s.storage.GetSize(ctx, attachment.FilePath)
	if err != nil {
		s.cleanup(ctx, stored)
		return nil, apperrors.InternalError(err)
	}
	attachment.FileSize = size

	if attachment.IsImage() {
		if thumbKey := s.processImage(ctx, src, attachment); thumbKey != "" {
			stored = append(stored, thumbKey)
		}
	}

	tx := db.Begin()
	if tx.Error != nil {
		s.cleanup(ctx, stored)
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if err := s.messageRepo.CreateAttachment(tx, attachment); err != nil {
		s.cleanup(ctx, stored)
		return nil, apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		s.cleanup(ctx, stored)
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "attachment uploaded",
		"attachment_id", attachment.ID,
		"message_id", message.ID,
		"mime_type", attachment.MimeType,
		"size", attachment.FileSize,
	)
	return dto.NewAttachmentResponse(attachment), nil
}

// processImage records dimensions and stores a thumbnail. It returns the
// thumbnail key, or "" when the image could not be processed; the upload
// itself still succeeds in that case.
func (s *attachmentService) processImage(ctx context.Context, src multipart.File, attachment *chat.MessageAttachment) string {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		logger.CtxWithError(ctx, "failed to rewind image", err, "attachment_id", attachment.ID)
		return ""
	}
	data, err := io.ReadAll(src)
	if err != nil {
		logger.CtxWithError(ctx, "failed to read image", err, "attachment_id", attachment.ID)
		return ""
	}

	info, err := imageprocessor.Inspect(bytes.NewReader(data))
	if err != nil {
		logger.CtxWithError(ctx, "failed to inspect image", err, "attachment_id", attachment.ID)
		return ""
	}
	attachment.Width = &info.Width
	attachment.Height = &info.Height

	thumb, _, err := s.processor.Thumbnail(bytes.NewReader(data))
	if err != nil {
		logger.CtxWithError(ctx, "failed to build thumbnail", err, "attachment_id", attachment.ID)
		return ""
	}
	key := storage.ThumbnailKey(attachment.MessageID, attachment.ID)
	if err := s.storage.Save(ctx, key, thumb, "image/jpeg"); err != nil {
		logger.CtxWithError(ctx, "failed to store thumbnail", err, "attachment_id", attachment.ID)
		return ""
	}
	attachment.ThumbnailPath = &key
	return key
}

func (s *attachmentService) cleanup(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			logger.CtxWithError(ctx, "failed to remove stored object", err, "key", key)
		}
	}
}

func (s *attachmentService) ListForMessage(db *gorm.DB, messageID string) ([]*dto.AttachmentResponse, error) {
	if _, err := s.messageRepo.FindMessageByID(db, messageID); err != nil {
		return nil, handleChatError(err)
	}
	attachments, err := s.messageRepo.FindAttachmentsByMessage(db, messageID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	result := make([]*dto.AttachmentResponse, 0, len(attachments))
	for i := range attachments {
		result = append(result, dto.NewAttachmentResponse(&attachments[i]))
	}
	return result, nil
}

func (s *attachmentService) Get(db *gorm.DB, attachmentID string) (*chat.MessageAttachment, error) {
	attachment, err := s.messageRepo.FindAttachmentByID(db, attachmentID)
	if err != nil {
		return nil, handleChatError(err)
	}
	return attachment, nil
}

// SoftDelete hides the attachment. The stored object is kept.
func (s *attachmentService) SoftDelete(db *gorm.DB, actorID, attachmentID string) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	attachment, err := s.messageRepo.FindAttachmentByID(tx, attachmentID)
	if err != nil {
		return handleChatError(err)
	}
	if !attachment.SoftDelete(models.Now()) {
		return nil
	}
	if err := s.messageRepo.UpdateAttachment(tx, attachment); err != nil {
		return handleChatError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	logger.Info("attachment deleted", "attachment_id", attachmentID, "actor_id", actorID)
	return nil
}

func (s *attachmentService) GetDownloadURL(ctx context.Context, db *gorm.DB, attachmentID string) (*dto.DownloadURLResponse, error) {
	attachment, err := s.messageRepo.FindAttachmentByID(db, attachmentID)
	if err != nil {
		return nil, handleChatError(err)
	}

	url, err := s.storage.GetSignedURL(ctx, attachment.FilePath, s.settings.URLExpiry)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	resp := &dto.DownloadURLResponse{
		URL:       url,
		ExpiresAt: models.Now().Add(s.settings.URLExpiry),
	}
	if attachment.ThumbnailPath != nil && *attachment.ThumbnailPath != "" {
		thumbURL, err := s.storage.GetSignedURL(ctx, *attachment.ThumbnailPath, s.settings.URLExpiry)
		if err != nil {
			logger.CtxWithError(ctx, "failed to sign thumbnail url", err, "attachment_id", attachmentID)
		} else {
			resp.ThumbnailURL = thumbURL
		}
	}
	return resp, nil
}
