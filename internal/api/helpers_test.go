package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/models"
	"canteen/server/internal/notify"
	"canteen/server/internal/services"
	"canteen/server/internal/store"
)

const (
	primary  = "stockwise"
	password = "ferrari"
)

type testServer struct {
	mem        *store.MemoryStore
	orders     *store.OrderRepository
	service    *services.OrderService
	sessions   *services.SessionService
	lifecycle  *services.Lifecycle
	owners     *services.OwnerService
	dispatcher *services.Dispatcher
	customers  *notify.Hub
	dashboard  *notify.Hub
	ws         *WSController
	router     *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemoryStore()
	orders := store.NewOrderRepository(mem)
	signals := store.NewSignalRepository(mem)
	cache := store.NewCachedOrders(orders)
	eta := services.NewETAService(nil)
	clock := services.SystemClock

	owners := services.NewOwnerService(store.NewOwnerRepository(mem), mem, primary, clock)
	_, err := owners.EnsurePrimary(ctx, password)
	require.NoError(t, err)

	sessions := services.NewSessionService(mem, clock)
	service := services.NewOrderService(orders, cache, services.NewOrderBuilder(eta, clock), eta, sessions, clock)
	lifecycle := services.NewLifecycle(orders, signals, cache, owners, clock)
	dispatcher := services.NewDispatcher(lifecycle, clock, 10*time.Millisecond)
	t.Cleanup(dispatcher.StopAll)

	customers := notify.NewHub("customers")
	dashboard := notify.NewHub("dashboard")
	go customers.Run(ctx)
	go dashboard.Run(ctx)

	watchers := func(sink notify.Sink) services.ReadyWatcher {
		return services.NewReadyPoller(signals, orders, sink, clock, 20*time.Millisecond)
	}
	ws := NewWSController(ctx, customers, dashboard, service, sessions, dispatcher, watchers, nil)

	router := NewRouter(Handlers{
		Orders:    NewOrderController(service),
		Carts:     NewCartController(sessions),
		Dashboard: NewDashboardController(service, lifecycle, owners, dispatcher),
		WS:        ws,
		Health:    NewHealthMonitor(mem, time.Second),
		Timing:    eta.Timing(),
		Tokens:    owners,
	})

	return &testServer{
		mem:        mem,
		orders:     orders,
		service:    service,
		sessions:   sessions,
		lifecycle:  lifecycle,
		owners:     owners,
		dispatcher: dispatcher,
		customers:  customers,
		dashboard:  dashboard,
		ws:         ws,
		router:     router,
	}
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": primary, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) submit(t *testing.T, sid string, lines ...models.CartLine) models.Order {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/orders", services.SubmitRequest{
		SessionID:     sid,
		Items:         lines,
		CustomerName:  "Budi",
		PaymentMethod: "cash",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var o models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
