package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"canteen/server/internal/events"
	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// SubmitRequest is a checkout. Items override the session cart when set.
type SubmitRequest struct {
	SessionID     string            `json:"session_id"`
	Items         []models.CartLine `json:"items"`
	CustomerName  string            `json:"customer_name"`
	Contact       string            `json:"contact"`
	Note          string            `json:"note"`
	PaymentMethod string            `json:"payment_method"`
}

// ETAView is the live status of an order for the tracking page.
type ETAView struct {
	OrderID      string             `json:"order_id"`
	Status       models.OrderStatus `json:"status"`
	ETAMinutes   int                `json:"eta_minutes"`
	ETADeadline  time.Time          `json:"eta_deadline"`
	QueueMinutes int                `json:"queue_minutes"`
	Ready        bool               `json:"ready"`
	Display      string             `json:"display"`
	Stale        bool               `json:"stale,omitempty"`
	StaleSince   *time.Time         `json:"stale_since,omitempty"`
}

// OrderService is the customer-facing side: checkout and tracking.
type OrderService struct {
	orders   *store.OrderRepository
	cache    *store.CachedOrders
	builder  *OrderBuilder
	eta      *ETAService
	sessions *SessionService
	clock    Clock

	statusLog StatusLog
	events    events.Publisher
}

// NewOrderService wires checkout to the store.
func NewOrderService(orders *store.OrderRepository, cache *store.CachedOrders, builder *OrderBuilder, eta *ETAService, sessions *SessionService, clock Clock) *OrderService {
	if clock == nil {
		clock = SystemClock
	}
	return &OrderService{
		orders:   orders,
		cache:    cache,
		builder:  builder,
		eta:      eta,
		sessions: sessions,
		clock:    clock,
		events:   events.NopPublisher{},
	}
}

// WithStatusLog records the creation row to l and serves History from it.
func (s *OrderService) WithStatusLog(l StatusLog) *OrderService {
	s.statusLog = l
	return s
}

// WithEvents publishes order.created to p.
func (s *OrderService) WithEvents(p events.Publisher) *OrderService {
	if p != nil {
		s.events = p
	}
	return s
}

// Submit builds and persists an order from the request or the session cart.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (models.Order, error) {
	cart := req.Items
	if len(cart) == 0 && req.SessionID != "" {
		sess, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return models.Order{}, err
		}
		cart = sess.Cart
	}

	pending, _, err := s.cache.All(ctx)
	if err != nil {
		return models.Order{}, err
	}

	o, err := s.builder.Build(cart, req.CustomerName, req.Contact, req.Note, req.PaymentMethod, pending)
	if err != nil {
		return models.Order{}, err
	}
	o.SessionID = req.SessionID

	if err := s.orders.Save(ctx, o); err != nil {
		return models.Order{}, err
	}
	s.cache.Put(o)

	if req.SessionID != "" {
		if _, err := s.sessions.CheckedOut(ctx, req.SessionID, o.ID); err != nil {
			log.WithError(err).WithField("session_id", req.SessionID).Warn("update session after checkout")
		}
	}
	if s.statusLog != nil {
		change := models.StatusChange{OrderID: o.ID, To: models.StatusNew, ChangedBy: o.CustomerName, ChangedAt: o.CreatedAt}
		if err := s.statusLog.Record(ctx, change); err != nil {
			log.WithError(err).WithField("order_id", o.ID).Warn("status log write failed")
		}
	}
	s.events.Publish(ctx, events.Event{
		Kind:         events.KindCreated,
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		NewStatus:    string(o.Status),
		Total:        o.Total,
		At:           o.CreatedAt,
	})

	log.WithFields(log.Fields{
		"order_id":    o.ID,
		"items":       len(o.Items),
		"total":       o.Total,
		"eta_minutes": o.ETAMinutes,
	}).Info("order submitted")
	return o, nil
}

// Get returns one order; stale is set when served from the snapshot.
func (s *OrderService) Get(ctx context.Context, id string) (models.Order, bool, error) {
	return s.cache.Get(ctx, id)
}

// List returns every order in queue order.
func (s *OrderService) List(ctx context.Context) ([]models.Order, bool, error) {
	return s.cache.All(ctx)
}

// ForSession returns a session's orders, newest first.
func (s *OrderService) ForSession(ctx context.Context, sessionID string) ([]models.Order, bool, error) {
	all, stale, err := s.cache.All(ctx)
	if err != nil {
		return nil, false, err
	}
	var out []models.Order
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].SessionID == sessionID {
			out = append(out, all[i])
		}
	}
	return out, stale, nil
}

// SnapshotAt is when the order snapshot served on store outages was taken.
func (s *OrderService) SnapshotAt() time.Time { return s.cache.TakenAt() }

// LiveETA reports the fixed deadline alongside the current queue estimate.
func (s *OrderService) LiveETA(ctx context.Context, id string) (ETAView, error) {
	o, stale, err := s.cache.Get(ctx, id)
	if err != nil {
		return ETAView{}, err
	}
	pending, _, err := s.cache.All(ctx)
	if err != nil {
		return ETAView{}, err
	}
	queue, ready := s.eta.Remaining(o, pending)

	v := ETAView{
		OrderID:      o.ID,
		Status:       o.Status,
		ETAMinutes:   o.ETAMinutes,
		ETADeadline:  o.ETADeadline,
		QueueMinutes: queue,
		Ready:        ready,
		Stale:        stale,
	}
	if stale {
		since := s.SnapshotAt()
		v.StaleSince = &since
	}
	if ready {
		v.Display = "Siap diambil"
	} else {
		v.Display = FormatRemaining(o.ETADeadline.Sub(s.clock.Now()))
	}
	return v, nil
}

// History returns the order's transitions, empty without a status log.
func (s *OrderService) History(ctx context.Context, id string) ([]models.StatusChange, error) {
	if _, _, err := s.cache.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.statusLog == nil {
		return []models.StatusChange{}, nil
	}
	return s.statusLog.History(ctx, id)
}
