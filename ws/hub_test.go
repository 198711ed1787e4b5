package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"messaging_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func fakeClient(t *testing.T, hub *Hub, userID string, buffer int) *Client {
	t.Helper()
	client := &Client{UserID: userID, hub: hub, ctx: context.Background(), send: make(chan []byte, buffer)}
	require.True(t, hub.join(client))
	require.Eventually(t, func() bool { return hub.IsConnected(userID) }, time.Second, time.Millisecond)
	return client
}

func readEvent(t *testing.T, client *Client) services.RealtimeEvent {
	t.Helper()
	select {
	case payload, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		var event services.RealtimeEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return services.RealtimeEvent{}
}

func TestHub_PushOffline(t *testing.T) {
	hub, _ := startHub(t)

	err := hub.Push(context.Background(), "nobody", services.PushPayload{NotificationID: "n1"})
	assert.ErrorIs(t, err, services.ErrClientOffline)
}

func TestHub_PushReachesEveryConnection(t *testing.T) {
	hub, _ := startHub(t)
	tab := fakeClient(t, hub, "u1", 4)
	phone := fakeClient(t, hub, "u1", 4)
	other := fakeClient(t, hub, "u2", 4)
	assert.Equal(t, 3, hub.ConnectionCount())

	require.NoError(t, hub.Push(context.Background(), "u1", services.PushPayload{NotificationID: "n1", Title: "Hi"}))

	for _, c := range []*Client{tab, phone} {
		event := readEvent(t, c)
		assert.Equal(t, services.EventNotification, event.Type)
		data, ok := event.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "n1", data["notification_id"])
	}
	assert.Empty(t, other.send)
}

func TestHub_PublishToUsers(t *testing.T) {
	hub, _ := startHub(t)
	a := fakeClient(t, hub, "a", 4)
	b := fakeClient(t, hub, "b", 4)

	hub.PublishToUsers([]string{"a", "b", "offline"}, services.RealtimeEvent{Type: "typing", ConversationID: "c1"})

	assert.Equal(t, "c1", readEvent(t, a).ConversationID)
	assert.Equal(t, "typing", readEvent(t, b).Type)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _ := startHub(t)
	slow := fakeClient(t, hub, "slow", 1)

	hub.PublishToUsers([]string{"slow"}, services.RealtimeEvent{Type: "first"})
	hub.PublishToUsers([]string{"slow"}, services.RealtimeEvent{Type: "second"})

	assert.Eventually(t, func() bool { return !hub.IsConnected("slow") }, time.Second, time.Millisecond)
	assert.Equal(t, "first", readEvent(t, slow).Type)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := fakeClient(t, hub, "u1", 1)

	cancel()

	select {
	case _, open := <-client.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
	assert.False(t, hub.join(&Client{UserID: "late", send: make(chan []byte, 1)}))
}
