package validator

import (
	"log"

	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules adds the enum tags used by the request DTOs. Empty
// values pass every rule; "required" handles presence.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	mustRegister("is-user-role", enumRule(func(s string) bool { return models.UserRole(s).IsValid() }))
	mustRegister("is-conversation-type", enumRule(func(s string) bool { return chat.ConversationType(s).IsValid() }))
	mustRegister("is-message-type", enumRule(func(s string) bool { return chat.MessageType(s).IsValid() }))
	mustRegister("is-notification-priority", enumRule(func(s string) bool { return models.NotificationPriority(s).IsValid() }))
	mustRegister("is-channel-type", enumRule(func(s string) bool { return models.ChannelType(s).IsValid() }))
	mustRegister("is-push-platform", enumRule(func(s string) bool { return models.PushPlatform(s).IsValid() }))
	mustRegister("is-frequency", enumRule(func(s string) bool { return models.DeliveryFrequency(s).IsValid() }))
	mustRegister("is-clock", validateClock)
}

func enumRule(valid func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		return valid(value)
	}
}

func validateClock(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseClock(value)
	return err == nil
}
