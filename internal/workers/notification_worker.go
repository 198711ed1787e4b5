package workers

import (
	"context"
	"time"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/services"

	"gorm.io/gorm"
)

const defaultBatchSize = 100

// WebhookRetryWorker re-sends webhook deliveries whose retry time has come.
// Several workers may poll the same database; each record is claimed by
// exactly one of them.
type WebhookRetryWorker struct {
	db        *gorm.DB
	delivery  services.DeliveryService
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewWebhookRetryWorker(db *gorm.DB, delivery services.DeliveryService, interval time.Duration, batchSize int) *WebhookRetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &WebhookRetryWorker{
		db:        db,
		delivery:  delivery,
		interval:  interval,
		batchSize: batchSize,
		now:       models.Now,
	}
}

// Start runs the poll loop in a goroutine until ctx is cancelled.
func (w *WebhookRetryWorker) Start(ctx context.Context) {
	go poll(ctx, "webhook_retry", w.interval, w.RunOnce)
}

// RunOnce processes one batch and returns how many retries were attempted.
func (w *WebhookRetryWorker) RunOnce(ctx context.Context) (int, error) {
	return w.delivery.ProcessDueWebhookRetries(ctx, w.db, w.now(), w.batchSize)
}

// ScheduledNotificationWorker dispatches notifications whose scheduled time
// has passed.
type ScheduledNotificationWorker struct {
	db        *gorm.DB
	delivery  services.DeliveryService
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewScheduledNotificationWorker(db *gorm.DB, delivery services.DeliveryService, interval time.Duration, batchSize int) *ScheduledNotificationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ScheduledNotificationWorker{
		db:        db,
		delivery:  delivery,
		interval:  interval,
		batchSize: batchSize,
		now:       models.Now,
	}
}

func (w *ScheduledNotificationWorker) Start(ctx context.Context) {
	go poll(ctx, "scheduled_notifications", w.interval, w.RunOnce)
}

func (w *ScheduledNotificationWorker) RunOnce(ctx context.Context) (int, error) {
	return w.delivery.DispatchDueScheduled(ctx, w.db, w.now(), w.batchSize)
}

func poll(ctx context.Context, name string, interval time.Duration, run func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("worker started", "worker", name, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped", "worker", name)
			return
		case <-ticker.C:
			processed, err := run(ctx)
			if err != nil || processed > 0 {
				logger.WorkerLog(name, "poll", err, "processed", processed)
			}
		}
	}
}
