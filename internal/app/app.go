package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messaging_backend/database"
	"messaging_backend/internal/config"
	"messaging_backend/internal/handlers"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/middleware"
	"messaging_backend/internal/routes"
	"messaging_backend/internal/validator"
	"messaging_backend/internal/workers"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Run starts the HTTP API. Without a queue it also runs the delivery pollers.
func Run() {
	cfg, db := bootstrap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := NewRuntime(cfg, db)
	if err != nil {
		logger.Fatal("Failed to build services", "error", err)
	}
	defer rt.Close()

	if err := seedFirstAdmin(rt); err != nil {
		logger.Fatal("Failed to seed first admin user", "error", err)
	}

	go rt.Hub.Run(ctx)
	if !rt.Queued {
		startPollers(ctx, rt)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           SetupRouter(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}

// bootstrap loads config, sets up logging and opens the migrated database.
func bootstrap() (*config.Config, *gorm.DB) {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	apperrors.SetDebug(cfg.IsDevelopment())
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...", "driver", cfg.Database.Driver)
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}
	logger.Info("Database connected")
	return cfg, db
}

func startPollers(ctx context.Context, rt *Runtime) {
	cfg := rt.Config
	delivery := rt.Services.DeliveryService
	workers.NewWebhookRetryWorker(rt.DB, delivery, cfg.RetryPollInterval(), cfg.Notifications.BatchSize).Start(ctx)
	workers.NewScheduledNotificationWorker(rt.DB, delivery, cfg.ScheduledPollInterval(), cfg.Notifications.BatchSize).Start(ctx)
}

func SetupRouter(rt *Runtime) *gin.Engine {
	if !rt.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	appHandlers := initializeHandlers(rt)
	wsHandler := ws.NewHandler(rt.Hub, rt.DB, rt.Services.MessageService, rt.Services.UserService, nil)

	ginRouter := initializeGinRouter(rt.DB)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler, middleware.AuthMiddleware(rt.Tokens))
	return ginRouter
}

func initializeHandlers(rt *Runtime) *handlers.AppHandlers {
	baseHandler := handlers.NewBaseHandler(validator.New(), rt.Services.AccessService)
	svc := rt.Services

	return &handlers.AppHandlers{
		AuthHandler:         handlers.NewAuthHandler(baseHandler, svc.UserService),
		UserHandler:         handlers.NewUserHandler(baseHandler, svc.UserService),
		ConversationHandler: handlers.NewConversationHandler(baseHandler, svc.ConversationService, svc.MessageService),
		MessageHandler:      handlers.NewMessageHandler(baseHandler, svc.MessageService, svc.AttachmentService),
		AttachmentHandler:   handlers.NewAttachmentHandler(baseHandler, svc.AttachmentService),
		NotificationHandler: handlers.NewNotificationHandler(baseHandler, svc.NotificationService, svc.DeliveryService),
	}
}

func initializeGinRouter(db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DBMiddleware(db))
	return router
}

func seedFirstAdmin(rt *Runtime) error {
	adminEmail := rt.Config.Admin.Email
	adminPassword := rt.Config.Admin.Password
	if adminEmail == "" || adminPassword == "" {
		logger.Warn("FIRST_ADMIN_EMAIL or FIRST_ADMIN_PASSWORD is not set. Skipping admin seeding.")
		return nil
	}

	admin, err := rt.Services.UserService.EnsureAdmin(rt.DB, adminEmail, adminPassword)
	if err != nil {
		return err
	}
	logger.Info("Admin user ready", "email", admin.Email)
	return nil
}
