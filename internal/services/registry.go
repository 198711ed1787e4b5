package services

// ServiceContainer holds every service the handlers and workers use.
type ServiceContainer struct {
	UserService         UserService
	ConversationService ConversationService
	MessageService      MessageService
	AttachmentService   AttachmentService
	NotificationService NotificationService
	DeliveryService     DeliveryService
	AccessService       AccessService
}
