package handlers

// AppHandlers holds every REST handler of the application.
type AppHandlers struct {
	AuthHandler         *AuthHandler
	UserHandler         *UserHandler
	ConversationHandler *ConversationHandler
	MessageHandler      *MessageHandler
	AttachmentHandler   *AttachmentHandler
	NotificationHandler *NotificationHandler
}
