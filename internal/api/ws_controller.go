package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"canteen/server/internal/notify"
	"canteen/server/internal/services"
)

var upgrader = websocket.Upgrader{
	// The customer and dashboard pages are served from other origins.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WatcherFactory builds the ready watcher for one customer session.
type WatcherFactory func(sink notify.Sink) services.ReadyWatcher

type sessionWatch struct {
	refs   int
	cancel context.CancelFunc
}

// WSController owns the websocket endpoints: live countdowns, customer
// session channels and the dashboard feed.
type WSController struct {
	base       context.Context
	customers  *notify.Hub
	dashboard  *notify.Hub
	orders     *services.OrderService
	sessions   *services.SessionService
	dispatcher *services.Dispatcher
	newWatcher WatcherFactory
	extra      notify.Sink

	mu      sync.Mutex
	watches map[string]*sessionWatch
}

// NewWSController wires the websocket endpoints. extra, when not nil, also
// receives every ready notice (the RabbitMQ fanout). Watchers live until
// their last connection closes or base ends.
func NewWSController(base context.Context, customers, dashboard *notify.Hub, orders *services.OrderService, sessions *services.SessionService, dispatcher *services.Dispatcher, newWatcher WatcherFactory, extra notify.Sink) *WSController {
	return &WSController{
		base:       base,
		customers:  customers,
		dashboard:  dashboard,
		orders:     orders,
		sessions:   sessions,
		dispatcher: dispatcher,
		newWatcher: newWatcher,
		extra:      extra,
		watches:    make(map[string]*sessionWatch),
	}
}

func (wc *WSController) withExtra(s notify.Sink) notify.Sink {
	if wc.extra == nil {
		return s
	}
	return notify.MultiSink{s, wc.extra}
}

// ServeCountdown streams countdown ticks for one order until the client
// disconnects. At zero the order is marked ready and the view is notified.
// GET /api/v1/orders/:id/countdown
func (wc *WSController) ServeCountdown(c *gin.Context) {
	order, _, err := wc.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	view := notify.NewConnSink(conn)
	defer view.Close()

	logger := log.WithField("order_id", order.ID)
	if order.IsTerminal() {
		_ = view.WriteJSON(services.Tick{OrderID: order.ID, Display: services.FormatRemaining(0), Ready: true})
	} else {
		cd := wc.dispatcher.Watch(wc.base, order, wc.withExtra(view), func(t services.Tick) {
			if err := view.WriteJSON(t); err != nil {
				logger.WithError(err).Debug("countdown frame not delivered")
			}
		})
		defer wc.dispatcher.Release(cd)
		logger.Info("countdown view opened")
	}

	readUntilClosed(conn)
	logger.Info("countdown view closed")
}

// ServeCustomer registers a customer session channel. While at least one
// channel of the session is open, its watched orders are checked for ready
// signals.
// GET /api/v1/ws?session=sid
func (wc *WSController) ServeCustomer(c *gin.Context) {
	sid := c.Query("session")
	if sid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session"})
		return
	}
	if _, err := wc.sessions.Get(c.Request.Context(), sid); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	wc.customers.AddClient(conn, sid)
	wc.acquire(sid)
	logger := log.WithField("session_id", sid)
	logger.WithField("clients", wc.customers.ClientsCount()).Info("customer connected")

	defer func() {
		wc.release(sid)
		wc.customers.RemoveClient(conn)
		logger.WithField("clients", wc.customers.ClientsCount()).Info("customer disconnected")
	}()

	readUntilClosed(conn)
}

// ServeDashboard streams order events to the owner dashboard.
// GET /api/v1/dashboard/ws
func (wc *WSController) ServeDashboard(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	wc.dashboard.AddClient(conn, "")
	log.WithFields(log.Fields{"actor": actorFrom(c), "clients": wc.dashboard.ClientsCount()}).Info("dashboard connected")
	defer wc.dashboard.RemoveClient(conn)

	readUntilClosed(conn)
}

// Watching returns the number of sessions with a running ready watcher.
func (wc *WSController) Watching() int {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return len(wc.watches)
}

func (wc *WSController) acquire(sid string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if w, ok := wc.watches[sid]; ok {
		w.refs++
		return
	}
	if wc.newWatcher == nil {
		return
	}

	ctx, cancel := context.WithCancel(wc.base)
	wc.watches[sid] = &sessionWatch{refs: 1, cancel: cancel}

	watcher := wc.newWatcher(wc.withExtra(notify.HubSink{Hub: wc.customers, Tag: sid}))
	ids := func() []string {
		lookup, done := context.WithTimeout(ctx, 2*time.Second)
		defer done()
		watched, err := wc.sessions.Watched(lookup, sid)
		if err != nil {
			log.WithError(err).WithField("session_id", sid).Debug("watched orders unavailable")
			return nil
		}
		return watched
	}
	go func() {
		if err := watcher.Watch(ctx, ids); err != nil {
			log.WithError(err).WithField("session_id", sid).Warn("ready watcher stopped")
		}
	}()
}

func (wc *WSController) release(sid string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	w, ok := wc.watches[sid]
	if !ok {
		return
	}
	w.refs--
	if w.refs > 0 {
		return
	}
	w.cancel()
	delete(wc.watches, sid)
}

// readUntilClosed drains client frames so close and ping control frames are
// processed.
func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket error")
			}
			return
		}
	}
}
