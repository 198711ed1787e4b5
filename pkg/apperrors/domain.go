package apperrors

import (
	"net/http"
)

// =========================================================================
// Factories
// =========================================================================

// ErrNotFound wraps a repository miss.
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// NotFound builds a domain specific 404.
func NotFound(domain, message string) *AppError {
	return New(CodeNotFound, domain, message, http.StatusNotFound)
}

// ErrConflict wraps a uniqueness violation.
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// InvariantViolation reports a rule of the domain model that the request would break.
func InvariantViolation(domain, message string) *AppError {
	return New(CodeInvariantViolation, domain, message, http.StatusUnprocessableEntity)
}

// CapacityExceeded reports a full container (e.g. max participants).
func CapacityExceeded(domain, message string) *AppError {
	return New(CodeCapacityExceeded, domain, message, http.StatusConflict)
}

// FieldError is a ValidationError for a single field.
func FieldError(field, message string) *AppError {
	return ValidationError(map[string]string{field: message})
}

func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusUnprocessableEntity)
}

// =========================================================================
// chat
// =========================================================================

var (
	ErrConversationNotFound = New(CodeNotFound, "chat", "Conversation not found", http.StatusNotFound)
	ErrParticipantNotFound  = New(CodeNotFound, "chat", "Participant not found", http.StatusNotFound)
	ErrMessageNotFound      = New(CodeNotFound, "chat", "Message not found", http.StatusNotFound)
	ErrThreadNotFound       = New(CodeNotFound, "chat", "Thread not found", http.StatusNotFound)
	ErrAttachmentNotFound   = New(CodeNotFound, "chat", "Attachment not found", http.StatusNotFound)

	ErrAlreadyParticipant = New(CodeConflict, "chat", "User is already a participant", http.StatusConflict)
	ErrConversationFull   = New(CodeCapacityExceeded, "chat", "Conversation has reached its participant limit", http.StatusConflict)

	ErrParticipantFloor   = New(CodeInvariantViolation, "chat", "Conversation must keep at least two participants", http.StatusUnprocessableEntity)
	ErrSenderNotMember    = New(CodeInvariantViolation, "chat", "Sender is not a participant of the conversation", http.StatusUnprocessableEntity)
	ErrConversationClosed = New(CodeInvariantViolation, "chat", "Conversation is closed", http.StatusUnprocessableEntity)
	ErrMessageDeleted     = New(CodeInvariantViolation, "chat", "Message has been deleted", http.StatusUnprocessableEntity)
	ErrThreadCycle        = New(CodeInvariantViolation, "chat", "Thread hierarchy contains a cycle", http.StatusUnprocessableEntity)
	ErrFileSharingOff     = New(CodeInvariantViolation, "chat", "File sharing is disabled for this conversation", http.StatusUnprocessableEntity)
)

// =========================================================================
// users
// =========================================================================

var (
	ErrUserNotFound       = New(CodeNotFound, "user", "User not found", http.StatusNotFound)
	ErrEmailTaken         = New(CodeConflict, "user", "Email is already registered", http.StatusConflict)
	ErrInvalidCredentials = New(CodeInvalidCredentials, "auth", "Invalid email or password", http.StatusUnauthorized)
	ErrAccountLocked      = New(CodeAccountLocked, "auth", "Account is temporarily locked", http.StatusLocked)
	ErrAccountInactive    = New(CodeForbidden, "auth", "Account is inactive or suspended", http.StatusForbidden)
)

// =========================================================================
// notifications
// =========================================================================

var (
	ErrNotificationNotFound = New(CodeNotFound, "notification", "Notification not found", http.StatusNotFound)
	ErrCategoryNotFound     = New(CodeNotFound, "notification", "Notification category not found", http.StatusNotFound)
	ErrChannelNotFound      = New(CodeNotFound, "notification", "Notification channel not found", http.StatusNotFound)
	ErrDeliveryNotFound     = New(CodeNotFound, "notification", "Delivery record not found", http.StatusNotFound)
)
