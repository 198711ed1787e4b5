package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// TypeNotificationDeliver delivers one notification over its channels.
	TypeNotificationDeliver = "notification:deliver"

	QueueNotifications = "notifications"
)

var ErrEmptyNotificationID = errors.New("queue: notification id is required")

type DeliverPayload struct {
	NotificationID string `json:"notification_id"`
}

func NewDeliverPayload(notificationID string) ([]byte, error) {
	if notificationID == "" {
		return nil, ErrEmptyNotificationID
	}
	return json.Marshal(DeliverPayload{NotificationID: notificationID})
}

func ParseDeliverPayload(data []byte) (DeliverPayload, error) {
	var p DeliverPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("queue: decode deliver payload: %w", err)
	}
	if p.NotificationID == "" {
		return p, ErrEmptyNotificationID
	}
	return p, nil
}
