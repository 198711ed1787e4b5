package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/queue"
)

// RunWorker consumes queued deliveries and runs the retry and schedule pollers.
func RunWorker() {
	cfg, db := bootstrap()
	if cfg.Redis.URL == "" {
		logger.Fatal("REDIS_URL is required to run the worker")
	}
	// Scheduled notifications found by the poller are delivered in-process.
	cfg.Notifications.AsyncDispatch = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := NewRuntime(cfg, db)
	if err != nil {
		logger.Fatal("Failed to build services", "error", err)
	}
	defer rt.Close()

	server, err := queue.NewServer(cfg.Redis.URL, 0)
	if err != nil {
		logger.Fatal("Failed to create queue server", "error", err)
	}
	delivery := rt.Services.DeliveryService
	server.HandleDelivery(func(ctx context.Context, notificationID string) error {
		return delivery.Deliver(ctx, rt.DB, notificationID)
	})

	startPollers(ctx, rt)

	logger.Info("Worker started", "queue", queue.QueueNotifications)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("Queue server error", "error", err)
	}
	logger.Info("Worker stopped")
}
