package services

import (
	"context"

	"gorm.io/gorm"
)

// InlineDispatcher delivers in the calling goroutine. It is used when no
// queue is configured and in tests.
type InlineDispatcher struct {
	db       *gorm.DB
	delivery DeliveryService
}

func NewInlineDispatcher(db *gorm.DB, delivery DeliveryService) *InlineDispatcher {
	return &InlineDispatcher{db: db, delivery: delivery}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, notificationID string) error {
	return d.delivery.Deliver(ctx, d.db, notificationID)
}
