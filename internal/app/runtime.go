package app

import (
	"fmt"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/cache"
	"messaging_backend/internal/config"
	"messaging_backend/internal/email"
	"messaging_backend/internal/imageprocessor"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/queue"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services"
	"messaging_backend/internal/storage"
	"messaging_backend/internal/webhook"
	"messaging_backend/ws"

	"gorm.io/gorm"
)

// Runtime is everything Run and RunWorker share.
type Runtime struct {
	Config   *config.Config
	DB       *gorm.DB
	Hub      *ws.Hub
	Tokens   *auth.TokenManager
	Storage  storage.Storage
	Services *services.ServiceContainer

	// Queued is true when delivery goes through asynq instead of running inline.
	Queued bool

	closers []func() error
}

// Close releases connections opened by NewRuntime.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close resource")
		}
	}
}

// NewRuntime builds repositories, adapters and services from cfg.
func NewRuntime(cfg *config.Config, db *gorm.DB) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		DB:     db,
		Hub:    ws.NewHub(),
		Tokens: auth.NewTokenManager(cfg.JWT.Secret, cfg.TokenTTL()),
	}

	store, err := storage.NewStorage(storage.ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	rt.Storage = store
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	renderer := email.NewTemplateManager()
	if cfg.Email.TemplatesDir != "" {
		if err := renderer.LoadTemplates(cfg.Email.TemplatesDir); err != nil {
			return nil, fmt.Errorf("failed to load email templates: %w", err)
		}
	}
	presence := rt.presenceCache()
	mailer := rt.mailer(renderer)

	var dispatcher services.Dispatcher
	if cfg.Notifications.AsyncDispatch && cfg.Redis.URL != "" {
		client, err := queue.NewClient(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		dispatcher = queue.NewAsynqDispatcher(client)
		rt.Queued = true
		logger.Info("Notification delivery is queued", "queue", queue.QueueNotifications)
	}

	// --- Repositories ---
	userRepo := repositories.NewUserRepository()
	conversationRepo := repositories.NewConversationRepository()
	messageRepo := repositories.NewMessageRepository()
	notificationRepo := repositories.NewNotificationRepository()
	deliveryRepo := repositories.NewDeliveryRepository()

	// --- Services ---
	deliveryService := services.NewDeliveryService(
		notificationRepo,
		deliveryRepo,
		mailer,
		rt.Hub,
		webhook.NewClient(cfg.WebhookTimeout()),
		dispatcher,
	)
	if dispatcher == nil {
		dispatcher = services.NewInlineDispatcher(db, deliveryService)
	}

	notificationService := services.NewNotificationService(
		notificationRepo,
		deliveryRepo,
		userRepo,
		dispatcher,
		rt.Hub,
		renderer,
		services.NotificationSettings{FromEmail: cfg.Email.FromEmail},
	)
	conversationService := services.NewConversationService(conversationRepo, messageRepo, userRepo, services.ChatSettings{
		Limits: chat.Limits{
			GroupMaxParticipants:   cfg.Chat.GroupMaxParticipants,
			ChannelMaxParticipants: cfg.Chat.ChannelMaxParticipants,
		},
		FloorAllTypes: cfg.Chat.ParticipantFloorAllTypes,
	})
	messageService := services.NewMessageService(
		conversationRepo,
		messageRepo,
		userRepo,
		conversationService,
		rt.Hub,
		notificationService,
	)
	attachmentService := services.NewAttachmentService(
		conversationRepo,
		messageRepo,
		store,
		imageprocessor.NewProcessor(cfg.Upload.ImageQuality, cfg.Upload.ThumbnailSize),
		services.AttachmentSettings{MaxSize: cfg.Upload.MaxSize},
	)

	rt.Services = &services.ServiceContainer{
		UserService:         services.NewUserService(userRepo, rt.Tokens, presence),
		ConversationService: conversationService,
		MessageService:      messageService,
		AttachmentService:   attachmentService,
		NotificationService: notificationService,
		DeliveryService:     deliveryService,
		AccessService:       services.NewAccessService(userRepo, conversationRepo, messageRepo),
	}
	return rt, nil
}

// presenceCache prefers redis so every web instance sees the same presence.
func (rt *Runtime) presenceCache() cache.Cache {
	if rt.Config.Redis.URL == "" {
		logger.Warn("REDIS_URL is not set, presence is kept in memory")
		return cache.NewMemoryCache()
	}
	redisCache, err := cache.NewRedisCache(rt.Config.Redis.URL)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, presence is kept in memory")
		return cache.NewMemoryCache()
	}
	rt.closers = append(rt.closers, redisCache.Close)
	return redisCache
}

func (rt *Runtime) mailer(renderer email.TemplateRenderer) email.Provider {
	if rt.Config.Email.SMTPHost == "" {
		logger.Warn("SMTP is not configured, emails are only logged")
		return &LogEmailProvider{}
	}
	provider := email.NewSMTPProvider(email.ConfigFrom(rt.Config), renderer)
	rt.closers = append(rt.closers, provider.Close)
	return provider
}
