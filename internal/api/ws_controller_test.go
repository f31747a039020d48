package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestCountdown_DueOrderMarkedReady(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.orders.Save(ctx, models.Order{
		ID:            "ORD-due",
		CustomerName:  "Sari",
		Items:         []models.CartLine{{Name: "Teh", UnitPrice: 3000, Quantity: 1}},
		PaymentMethod: models.PaymentCash,
		Total:         3000,
		Status:        models.StatusProcessing,
		CreatedAt:     now.Add(-10 * time.Minute),
		UpdatedAt:     now.Add(-10 * time.Minute),
		ETAMinutes:    3,
		ETADeadline:   now.Add(-time.Minute),
	}))

	conn := dial(t, srv, "/api/v1/orders/ORD-due/countdown")

	tick := readFrame(t, conn)
	assert.Equal(t, "ORD-due", tick["order_id"])
	assert.Equal(t, "00:00", tick["display"])
	assert.Equal(t, true, tick["ready"])

	notice := readFrame(t, conn)
	assert.Equal(t, "notification", notice["type"])
	assert.Equal(t, "Pesanan Siap!", notice["title"])
	assert.Contains(t, notice["body"], "ORD-due")

	o, err := s.orders.Get(ctx, "ORD-due")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, o.Status)
}

func TestCountdown_CloseStopsIt(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	o := s.submit(t, "", models.CartLine{Name: "Seblak", UnitPrice: 12000, Quantity: 1})
	conn := dial(t, srv, "/api/v1/orders/"+o.ID+"/countdown")

	tick := readFrame(t, conn)
	assert.Equal(t, false, tick["ready"])
	assert.Regexp(t, `^1[45]:\d\d$`, tick["display"])
	require.Eventually(t, func() bool { return s.dispatcher.Active() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	require.Eventually(t, func() bool { return s.dispatcher.Active() == 0 }, 2*time.Second, 10*time.Millisecond)

	got, err := s.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
}

func TestCountdown_TerminalOrderSendsSingleFrame(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.login(t)
	o := s.submit(t, "", models.CartLine{Name: "Kopi", UnitPrice: 4000, Quantity: 1})
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/dashboard/orders/"+o.ID+"/advance", nil, token).Code)
	}

	conn := dial(t, srv, "/api/v1/orders/"+o.ID+"/countdown")
	tick := readFrame(t, conn)
	assert.Equal(t, true, tick["ready"])
	assert.Zero(t, s.dispatcher.Active())
}

func TestCountdown_UnknownOrder(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/v1/orders/ORD-none/countdown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomerWS_ReadyNoticeGoesToOwningSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	mine := s.submit(t, "sess-a", models.CartLine{Name: "Bakso", UnitPrice: 15000, Quantity: 1})
	s.submit(t, "sess-b", models.CartLine{Name: "Soto", UnitPrice: 12000, Quantity: 1})

	a := dial(t, srv, "/api/v1/ws?session=sess-a")
	b := dial(t, srv, "/api/v1/ws?session=sess-b")
	require.Eventually(t, func() bool { return s.ws.Watching() == 2 }, time.Second, 10*time.Millisecond)

	token := s.login(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/dashboard/orders/"+mine.ID+"/advance", nil, token).Code)
	}

	notice := readFrame(t, a)
	assert.Equal(t, "notification", notice["type"])
	assert.Contains(t, notice["body"], mine.ID)
	assert.Contains(t, notice["body"], "Budi")

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "other sessions must not see the notice")

	require.Eventually(t, func() bool {
		pending, err := store.NewSignalRepository(s.mem).Pending(context.Background(), mine.ID)
		return err == nil && !pending
	}, time.Second, 10*time.Millisecond)

	a.Close()
	b.Close()
	require.Eventually(t, func() bool { return s.ws.Watching() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCustomerWS_MissingSession(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/v1/ws", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardWS_ReceivesBroadcasts(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.login(t)
	conn := dial(t, srv, "/api/v1/dashboard/ws?token="+token)
	require.Eventually(t, func() bool { return s.dashboard.ClientsCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.dashboard.BroadcastJSON(map[string]string{"type": "order_event", "order_id": "ORD-1"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "order_event", frame["type"])

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/dashboard/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
