package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"canteen/server/internal/models"
	"canteen/server/internal/notify"
	"canteen/server/internal/store"
)

// ReadyWatcher raises one customer notification per ready signal written
// for the orders returned by ids. Watch blocks until ctx ends.
type ReadyWatcher interface {
	Watch(ctx context.Context, ids func() []string) error
}

// OrderReader looks an order up by id.
type OrderReader interface {
	Get(ctx context.Context, id string) (models.Order, error)
}

// readyNotifier consumes a signal and turns it into a notification.
type readyNotifier struct {
	signals *store.SignalRepository
	orders  OrderReader
	sink    notify.Sink
}

func (n readyNotifier) consume(ctx context.Context, id string) bool {
	logger := log.WithField("order_id", id)
	ok, err := n.signals.Consume(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("consume ready signal")
		return false
	}
	if !ok {
		return false
	}

	name := "pelanggan"
	if o, err := n.orders.Get(ctx, id); err == nil && o.CustomerName != "" {
		name = o.CustomerName
	}
	if n.sink != nil && n.sink.RequestPermission() {
		n.sink.Notify(ctx, readyTitle, fmt.Sprintf("Pesanan #%s atas nama %s sudah siap diambil.", id, name))
	}
	logger.Debug("ready signal consumed")
	return true
}

// ReadyPoller checks the signals of watched orders on a fixed interval.
type ReadyPoller struct {
	readyNotifier
	clock    Clock
	interval time.Duration
}

// NewReadyPoller polls every interval.
func NewReadyPoller(signals *store.SignalRepository, orders OrderReader, sink notify.Sink, clock Clock, interval time.Duration) *ReadyPoller {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ReadyPoller{
		readyNotifier: readyNotifier{signals: signals, orders: orders, sink: sink},
		clock:         clock,
		interval:      interval,
	}
}

// PollOnce checks every id once and returns how many signals it consumed.
func (p *ReadyPoller) PollOnce(ctx context.Context, ids []string) int {
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if p.consume(ctx, id) {
			n++
		}
	}
	return n
}

func (p *ReadyPoller) Watch(ctx context.Context, ids func() []string) error {
	t := p.clock.NewTicker(p.interval)
	defer t.Stop()

	p.PollOnce(ctx, ids())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			p.PollOnce(ctx, ids())
		}
	}
}

// SubscribeWatcher reacts to signal writes pushed by the store instead of
// polling.
type SubscribeWatcher struct {
	readyNotifier
	store store.Store
}

// NewSubscribeWatcher subscribes to s for signal changes.
func NewSubscribeWatcher(s store.Store, signals *store.SignalRepository, orders OrderReader, sink notify.Sink) *SubscribeWatcher {
	return &SubscribeWatcher{
		readyNotifier: readyNotifier{signals: signals, orders: orders, sink: sink},
		store:         s,
	}
}

func (w *SubscribeWatcher) Watch(ctx context.Context, ids func() []string) error {
	changes, cancel, err := w.store.Subscribe(ctx, store.SignalsPrefix())
	if err != nil {
		return err
	}
	defer cancel()

	// Signals raised before the subscription was live.
	for _, id := range ids() {
		w.consume(ctx, id)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Op != store.OpSet {
				continue
			}
			id := store.Base(c.Path)
			if contains(ids(), id) {
				w.consume(ctx, id)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
