package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubPublishReachesSubscribersOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	watcher := hub.NewClient("user-1", 4)
	bystander := hub.NewClient("user-2", 4)
	hub.Subscribe(watcher, "job-1")
	hub.Subscribe(bystander, "job-2")

	hub.Publish(Progress("job-1", "planning", 10, 0))

	select {
	case evt := <-watcher.Outbound:
		assert.Equal(t, EventProgress, evt.Type)
		assert.Equal(t, "job-1", evt.JobID)
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-bystander.Outbound:
		t.Fatal("event leaked to a different job's subscriber")
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := hub.NewClient("user-1", 4)
	hub.Subscribe(client, "job-1")
	hub.Unsubscribe(client, "job-1")

	hub.Publish(Progress("job-1", "planning", 10, 0))
	assert.Zero(t, hub.SubscriberCount("job-1"))
	select {
	case <-client.Outbound:
		t.Fatal("unsubscribed client received event")
	default:
	}
}

func TestHubSlowConsumerDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := hub.NewClient("user-1", 1)
	hub.Subscribe(client, "job-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Publish(Progress("job-1", "a", 1, 0))
		hub.Publish(Progress("job-1", "b", 2, 0))
		hub.Publish(Progress("job-1", "c", 3, 0))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
}

func TestHubRemoveClientClearsAllJobs(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := hub.NewClient("user-1", 4)
	hub.Subscribe(client, "job-1")
	hub.Subscribe(client, "job-2")

	hub.RemoveClient(client)
	assert.Zero(t, hub.SubscriberCount("job-1"))
	assert.Zero(t, hub.SubscriberCount("job-2"))
}

func TestHubShutdownClosesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	subscribed := hub.NewClient("user-1", 4)
	idle := hub.NewClient("user-2", 4)
	hub.Subscribe(subscribed, "job-1")

	hub.Shutdown()

	assert.Zero(t, hub.SubscriberCount("job-1"))
	for _, client := range []*Client{subscribed, idle} {
		select {
		case <-client.done:
		default:
			t.Fatal("client not signalled done after shutdown")
		}
		_, open := <-client.Outbound
		assert.False(t, open)
	}

	// Per-client teardown after shutdown must not panic.
	hub.Close(subscribed)
}

// End-to-end over a real socket: connect, subscribe, receive a published
// event, and observe the terminal completion message.
func TestHubSocketRoundTrip(t *testing.T) {
	hub := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		client := hub.NewClient("user-1", 8)
		hub.ServeConn(conn, client, ConnConfig{})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageSubscribe, JobID: "job-1"}))

	// Subscription is processed asynchronously by the read pump.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("job-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(Progress("job-1", "writing", 50, 400))
	hub.Publish(Complete("job-1", "the finished coursework"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventProgress, first.Type)

	var second Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, EventComplete, second.Type)
	assert.True(t, second.Terminal())

	payload, err := second.DecodeComplete()
	require.NoError(t, err)
	assert.Equal(t, "the finished coursework", payload.Content)
}
