package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"messaging_backend/internal/logger"
)

// ===================== Client =====================

// Client enqueues notification tasks into redis through asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// EnqueueDelivery schedules delivery of a notification. Tasks are unique per
// notification for a minute so a double dispatch collapses into one.
func (c *Client) EnqueueDelivery(ctx context.Context, notificationID string) (string, error) {
	payload, err := NewDeliverPayload(notificationID)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TypeNotificationDeliver, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(3),
		asynq.Unique(time.Minute),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", nil
		}
		return "", fmt.Errorf("asynq: enqueue %s: %w", TypeNotificationDeliver, err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// AsynqDispatcher hands notification delivery to the worker process.
type AsynqDispatcher struct {
	client *Client
}

func NewAsynqDispatcher(client *Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, notificationID string) error {
	taskID, err := d.client.EnqueueDelivery(ctx, notificationID)
	if err != nil {
		return err
	}
	logger.CtxInfo(ctx, "notification delivery enqueued", "notification_id", notificationID, "task_id", taskID)
	return nil
}

// ===================== Server =====================

// DeliverFunc delivers a single notification.
type DeliverFunc func(ctx context.Context, notificationID string) error

// Server consumes notification tasks.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(redisURL string, concurrency int) (*Server, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueNotifications: 6, "default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WorkerLog("asynq", task.Type(), err)
		}),
	})
	return &Server{server: srv, mux: asynq.NewServeMux()}, nil
}

// HandleDelivery registers deliver for TypeNotificationDeliver tasks.
func (s *Server) HandleDelivery(deliver DeliverFunc) {
	s.mux.HandleFunc(TypeNotificationDeliver, DeliveryHandler(deliver))
}

// Run starts processing and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

// DeliveryHandler adapts deliver to an asynq handler. Malformed payloads are
// not retried.
func DeliveryHandler(deliver DeliverFunc) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := ParseDeliverPayload(t.Payload())
		if err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if id, ok := asynq.GetTaskID(ctx); ok {
			ctx = logger.WithTaskID(ctx, id)
		}
		return deliver(ctx, payload.NotificationID)
	}
}

func redisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is empty")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return opt, nil
}
