package services

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"canteen/server/internal/events"
	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// SystemActor is the actor recorded for transitions made by the countdown.
const SystemActor = "system"

// Authorizer decides whether an actor may change order status.
type Authorizer interface {
	Permitted(ctx context.Context, actor string) bool
}

// StatusLog is the transition audit trail.
type StatusLog interface {
	Record(ctx context.Context, c models.StatusChange) error
	History(ctx context.Context, orderID string) ([]models.StatusChange, error)
}

// Lifecycle moves orders along new -> processing -> ready -> done.
type Lifecycle struct {
	orders  *store.OrderRepository
	signals *store.SignalRepository
	cache   *store.CachedOrders
	auth    Authorizer
	clock   Clock

	statusLog StatusLog
	events    events.Publisher
}

// NewLifecycle wires the state machine to its store.
func NewLifecycle(orders *store.OrderRepository, signals *store.SignalRepository, cache *store.CachedOrders, auth Authorizer, clock Clock) *Lifecycle {
	if clock == nil {
		clock = SystemClock
	}
	return &Lifecycle{
		orders:  orders,
		signals: signals,
		cache:   cache,
		auth:    auth,
		clock:   clock,
		events:  events.NopPublisher{},
	}
}

// WithStatusLog records every transition to l.
func (lc *Lifecycle) WithStatusLog(l StatusLog) *Lifecycle {
	lc.statusLog = l
	return lc
}

// WithEvents publishes every transition to p.
func (lc *Lifecycle) WithEvents(p events.Publisher) *Lifecycle {
	if p != nil {
		lc.events = p
	}
	return lc
}

// Transition moves order id one step forward to `to`. Reaching ready or
// done raises the order's ready signal.
func (lc *Lifecycle) Transition(ctx context.Context, actor, id string, to models.OrderStatus) (models.Order, error) {
	if !lc.permitted(ctx, actor) {
		return models.Order{}, &models.ForbiddenError{Actor: actor}
	}
	if !to.Valid() {
		return models.Order{}, &models.ValidationError{Reason: "unknown status " + string(to)}
	}
	o, err := lc.orders.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !models.CanTransition(o.Status, to) {
		return models.Order{}, &models.InvalidTransitionError{From: o.Status, To: to}
	}
	return lc.apply(ctx, actor, o, to)
}

// Advance moves the order to its next status.
func (lc *Lifecycle) Advance(ctx context.Context, actor, id string) (models.Order, error) {
	if !lc.permitted(ctx, actor) {
		return models.Order{}, &models.ForbiddenError{Actor: actor}
	}
	o, err := lc.orders.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	next, ok := o.Status.Next()
	if !ok {
		return models.Order{}, &models.InvalidTransitionError{From: o.Status, To: o.Status}
	}
	return lc.apply(ctx, actor, o, next)
}

// MarkReady forces ready from new or processing once the deadline passed.
// Orders already ready or done are returned unchanged with changed false.
func (lc *Lifecycle) MarkReady(ctx context.Context, id string) (o models.Order, changed bool, err error) {
	o, err = lc.orders.Get(ctx, id)
	if err != nil {
		return models.Order{}, false, err
	}
	if o.Status.IsTerminal() {
		return o, false, nil
	}
	o, err = lc.apply(ctx, SystemActor, o, models.StatusReady)
	if err != nil {
		return o, false, err
	}
	return o, true, nil
}

// Delete removes the order and its ready signal regardless of status.
func (lc *Lifecycle) Delete(ctx context.Context, actor, id string) error {
	if !lc.permitted(ctx, actor) {
		return &models.ForbiddenError{Actor: actor}
	}
	o, err := lc.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := lc.orders.Delete(ctx, id); err != nil {
		return err
	}
	if err := lc.signals.Clear(ctx, id); err != nil {
		log.WithError(err).WithField("order_id", id).Warn("clear ready signal")
	}
	if lc.cache != nil {
		lc.cache.Forget(id)
	}

	lc.events.Publish(ctx, events.Event{
		Kind:         events.KindDeleted,
		OrderID:      id,
		CustomerName: o.CustomerName,
		OldStatus:    string(o.Status),
		Actor:        actor,
		At:           lc.clock.Now(),
	})
	log.WithFields(log.Fields{"order_id": id, "actor": actor}).Info("order deleted")
	return nil
}

func (lc *Lifecycle) apply(ctx context.Context, actor string, o models.Order, to models.OrderStatus) (models.Order, error) {
	now := lc.clock.Now()
	if err := lc.orders.UpdateStatus(ctx, o.ID, to, now); err != nil {
		return models.Order{}, err
	}
	from := o.Status
	o.Status = to
	o.UpdatedAt = now

	if to.IsTerminal() {
		if err := lc.signals.Raise(ctx, o.ID); err != nil {
			return o, errors.Wrapf(err, "raise ready signal for %s", o.ID)
		}
	}
	if lc.cache != nil {
		lc.cache.Put(o)
	}

	change := models.StatusChange{OrderID: o.ID, From: from, To: to, ChangedBy: actor, ChangedAt: now}
	if lc.statusLog != nil {
		if err := lc.statusLog.Record(ctx, change); err != nil {
			log.WithError(err).WithField("order_id", o.ID).Warn("status log write failed")
		}
	}
	lc.events.Publish(ctx, events.Event{
		Kind:         events.KindStatusChanged,
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		OldStatus:    string(from),
		NewStatus:    string(to),
		Actor:        actor,
		Total:        o.Total,
		At:           now,
	})

	log.WithFields(log.Fields{
		"order_id": o.ID,
		"from":     from,
		"to":       to,
		"actor":    actor,
	}).Info("order status changed")
	return o, nil
}

func (lc *Lifecycle) permitted(ctx context.Context, actor string) bool {
	if actor == SystemActor {
		return false
	}
	return lc.auth != nil && lc.auth.Permitted(ctx, actor)
}
