package services

import (
	"errors"
	"net/http"

	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// handleChatError maps repository and model errors of the chat domain.
func handleChatError(err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return apperrors.ErrConversationNotFound
	case errors.Is(err, repositories.ErrParticipantNotFound):
		return apperrors.ErrParticipantNotFound
	case errors.Is(err, repositories.ErrParticipantExists):
		return apperrors.ErrAlreadyParticipant
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperrors.ErrMessageNotFound
	case errors.Is(err, repositories.ErrThreadNotFound):
		return apperrors.ErrThreadNotFound
	case errors.Is(err, repositories.ErrAttachmentNotFound):
		return apperrors.ErrAttachmentNotFound
	case errors.Is(err, repositories.ErrUserNotFound):
		return apperrors.ErrUserNotFound
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrNotFound(err)
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrContentTooLong):
		return apperrors.FieldError("content", err.Error())
	case errors.Is(err, chat.ErrMessageIsDeleted):
		return apperrors.ErrMessageDeleted
	case errors.Is(err, chat.ErrSystemMessage):
		return apperrors.InvariantViolation("chat", "System messages cannot be edited")
	case errors.Is(err, chat.ErrThreadCycle):
		return apperrors.ErrThreadCycle
	case errors.Is(err, models.ErrInvalidTransition):
		return apperrors.Wrap(err, apperrors.CodeInvariantViolation, "chat", "Status change is not allowed", http.StatusUnprocessableEntity)
	}
	return apperrors.InternalError(err)
}

func handleUserError(err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repositories.ErrUserNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrUserNotFound
	case errors.Is(err, repositories.ErrUserAlreadyExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrEmailTaken
	}
	return apperrors.InternalError(err)
}

func handleNotificationError(err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repositories.ErrNotificationNotFound):
		return apperrors.ErrNotificationNotFound
	case errors.Is(err, repositories.ErrCategoryNotFound):
		return apperrors.ErrCategoryNotFound
	case errors.Is(err, repositories.ErrChannelNotFound):
		return apperrors.ErrChannelNotFound
	case errors.Is(err, repositories.ErrDeliveryNotFound):
		return apperrors.ErrDeliveryNotFound
	case errors.Is(err, repositories.ErrUserNotFound):
		return apperrors.ErrUserNotFound
	case errors.Is(err, repositories.ErrCategoryExists):
		return apperrors.ErrConflict(err, "notification", "Category name is already used")
	case errors.Is(err, repositories.ErrChannelExists):
		return apperrors.ErrConflict(err, "notification", "Channel name is already used")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrNotFound(err)
	case errors.Is(err, models.ErrInvalidTransition):
		return apperrors.Wrap(err, apperrors.CodeInvariantViolation, "notification", "Status change is not allowed", http.StatusUnprocessableEntity)
	}
	return apperrors.InternalError(err)
}
