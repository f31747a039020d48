package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	allowed bool
	bodies  []string
}

func (r *recordingSink) RequestPermission() bool { return r.allowed }

func (r *recordingSink) Notify(_ context.Context, _, body string) {
	r.bodies = append(r.bodies, body)
}

func TestMultiSink_SkipsSinksWithoutPermission(t *testing.T) {
	on := &recordingSink{allowed: true}
	off := &recordingSink{}
	m := MultiSink{on, off}

	assert.True(t, m.RequestPermission())
	m.Notify(context.Background(), "Pesanan Siap!", "hello")

	assert.Equal(t, []string{"hello"}, on.bodies)
	assert.Empty(t, off.bodies)
	assert.False(t, MultiSink{off}.RequestPermission())
}

type fakePublisher struct {
	down     bool
	fail     error
	exchange string
	body     []byte
}

func (f *fakePublisher) Ping() error {
	if f.down {
		return errors.New("closed")
	}
	return nil
}

func (f *fakePublisher) Publish(_ context.Context, exchange, _ string, body []byte, _ amqp.Table) error {
	f.exchange = exchange
	f.body = body
	return f.fail
}

func TestRabbitSink_PublishesNotification(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRabbitSink(pub, "")

	require.True(t, sink.RequestPermission())
	sink.Notify(context.Background(), "Pesanan Siap!", "Pesanan ORD-1 sudah siap diambil.")

	assert.Equal(t, NotificationsExchange, pub.exchange)
	var n Notification
	require.NoError(t, json.Unmarshal(pub.body, &n))
	assert.Equal(t, "Pesanan Siap!", n.Title)
	assert.Equal(t, "Pesanan ORD-1 sudah siap diambil.", n.Body)

	pub.down = true
	assert.False(t, sink.RequestPermission())
}

func TestRabbitSink_PublishErrorIsSwallowed(t *testing.T) {
	sink := NewRabbitSink(&fakePublisher{fail: errors.New("nack")}, "x")
	assert.NotPanics(t, func() { sink.Notify(context.Background(), "t", "b") })
}

func TestHubSink_BroadcastsToConnectedClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub("test")
	go hub.Run(ctx)
	sink := HubSink{Hub: hub, Tag: "s1"}
	other := HubSink{Hub: hub, Tag: "s2"}
	assert.False(t, sink.RequestPermission())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddClient(conn, r.URL.Query().Get("session"))
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?session=s1", nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, sink.RequestPermission, time.Second, 10*time.Millisecond)
	assert.False(t, other.RequestPermission())
	assert.True(t, HubSink{Hub: hub}.RequestPermission())
	sink.Notify(ctx, "Pesanan Siap!", "ready")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)

	var n Notification
	require.NoError(t, json.Unmarshal(msg, &n))
	assert.Equal(t, "notification", n.Type)
	assert.Equal(t, "ready", n.Body)
}

func TestConnSink_WritesUntilClosed(t *testing.T) {
	sinks := make(chan *ConnSink, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sinks <- NewConnSink(conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var sink *ConnSink
	select {
	case sink = <-sinks:
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
	}

	require.True(t, sink.RequestPermission())
	require.NoError(t, sink.WriteJSON(map[string]int{"remaining_seconds": 3}))
	sink.Notify(context.Background(), "Pesanan Siap!", "ORD-1")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]int
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, 3, frame["remaining_seconds"])
	var n Notification
	require.NoError(t, client.ReadJSON(&n))
	assert.Equal(t, "ORD-1", n.Body)

	sink.Close()
	assert.False(t, sink.RequestPermission())
	assert.Error(t, sink.WriteJSON("late"))
}
