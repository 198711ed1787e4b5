package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverPayload(t *testing.T) {
	data, err := NewDeliverPayload("n-1")
	require.NoError(t, err)

	p, err := ParseDeliverPayload(data)
	require.NoError(t, err)
	assert.Equal(t, "n-1", p.NotificationID)

	_, err = NewDeliverPayload("")
	assert.ErrorIs(t, err, ErrEmptyNotificationID)

	_, err = ParseDeliverPayload([]byte(`{}`))
	assert.ErrorIs(t, err, ErrEmptyNotificationID)
}

func TestDeliveryHandler(t *testing.T) {
	var got string
	handler := DeliveryHandler(func(ctx context.Context, id string) error {
		got = id
		return nil
	})

	data, _ := NewDeliverPayload("n-2")
	require.NoError(t, handler(context.Background(), asynq.NewTask(TypeNotificationDeliver, data)))
	assert.Equal(t, "n-2", got)
}

func TestDeliveryHandler_BadPayloadSkipsRetry(t *testing.T) {
	handler := DeliveryHandler(func(ctx context.Context, id string) error {
		t.Fatal("deliver must not be called")
		return nil
	})

	err := handler(context.Background(), asynq.NewTask(TypeNotificationDeliver, []byte("not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}
