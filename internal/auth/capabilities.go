package auth

import (
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/pkg/apperrors"
)

// Access is everything a capability may need to decide. Fields that were not
// resolved for the request stay nil.
type Access struct {
	UserID       string
	User         *models.User
	Conversation *chat.Conversation
	Participant  *chat.ConversationParticipant
	Message      *chat.Message
}

// Capability returns nil when the access is allowed.
type Capability func(a *Access) error

// Require checks every capability in order and returns the first denial.
func Require(a *Access, caps ...Capability) error {
	if a == nil || a.UserID == "" {
		return apperrors.NewUnauthorizedError("Authentication required")
	}
	for _, capability := range caps {
		if err := capability(a); err != nil {
			return err
		}
	}
	return nil
}

// AnyOf passes when at least one of caps passes. The last denial is returned otherwise.
func AnyOf(caps ...Capability) Capability {
	return func(a *Access) error {
		var err error = apperrors.NewForbiddenError("Access denied")
		for _, capability := range caps {
			if err = capability(a); err == nil {
				return nil
			}
		}
		return err
	}
}

func IsActiveUser(a *Access) error {
	if a.User == nil {
		return apperrors.NewUnauthorizedError("Authentication required")
	}
	if !a.User.CanSignIn() {
		return apperrors.ErrAccountInactive
	}
	return nil
}

func IsParticipant(a *Access) error {
	if a.Participant == nil || a.Participant.UserID != a.UserID {
		return apperrors.NewForbiddenError("You are not a participant of this conversation")
	}
	return nil
}

func IsConversationAdmin(a *Access) error {
	if a.Participant == nil || a.Participant.UserID != a.UserID || !a.Participant.IsAdmin {
		return apperrors.NewForbiddenError("Conversation admin rights required")
	}
	return nil
}

func IsConversationCreator(a *Access) error {
	if a.Conversation == nil || a.Conversation.CreatedBy != a.UserID {
		return apperrors.NewForbiddenError("Only the conversation creator can do this")
	}
	return nil
}

func IsMessageSender(a *Access) error {
	if a.Message == nil || a.Message.SenderID != a.UserID {
		return apperrors.NewForbiddenError("Only the sender can do this")
	}
	return nil
}

func IsStaff(a *Access) error {
	if a.User == nil || !a.User.HasModerationPermissions() {
		return apperrors.NewForbiddenError("Staff permissions required")
	}
	return nil
}

func CanCreateConversations(a *Access) error {
	if a.User == nil || !a.User.CanCreateConversations() {
		return apperrors.NewForbiddenError("Your role cannot create group conversations")
	}
	return nil
}

// =======================
// Per-operation capability sets
// =======================

var (
	SendMessageCaps        = []Capability{IsActiveUser, IsParticipant}
	ReadConversationCaps   = []Capability{IsActiveUser, AnyOf(IsParticipant, IsStaff)}
	EditMessageCaps        = []Capability{IsActiveUser, AnyOf(IsMessageSender, IsStaff)}
	DeleteMessageCaps      = []Capability{IsActiveUser, AnyOf(IsMessageSender, IsConversationCreator, IsStaff)}
	ManageConversationCaps = []Capability{IsActiveUser, AnyOf(IsConversationAdmin, IsConversationCreator, IsStaff)}
	CreateGroupCaps        = []Capability{IsActiveUser, CanCreateConversations}
)
