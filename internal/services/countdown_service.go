package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"canteen/server/internal/models"
	"canteen/server/internal/notify"
)

const readyTitle = "Pesanan Siap!"

// Tick is one countdown frame.
type Tick struct {
	OrderID   string        `json:"order_id"`
	Remaining time.Duration `json:"-"`
	Seconds   int64         `json:"remaining_seconds"`
	Display   string        `json:"display"`
	Ready     bool          `json:"ready"`
}

// FormatRemaining renders d as mm:ss, clamped at 00:00. Minutes are not
// capped at 59.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// ReadyMarker is the lifecycle operation the countdown calls at zero.
type ReadyMarker interface {
	MarkReady(ctx context.Context, id string) (models.Order, bool, error)
}

// Countdown ticks towards one order's deadline and marks it ready at zero.
// It fires at most once and may be restarted after Stop.
type Countdown struct {
	orderID  string
	deadline time.Time
	marker   ReadyMarker
	sink     notify.Sink
	clock    Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	fired  bool
}

// NewCountdown creates a stopped countdown for o. interval is clamped to
// one second at most.
func NewCountdown(o models.Order, marker ReadyMarker, sink notify.Sink, clock Clock, interval time.Duration) *Countdown {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}
	return &Countdown{
		orderID:  o.ID,
		deadline: o.ETADeadline,
		marker:   marker,
		sink:     sink,
		clock:    clock,
		interval: interval,
	}
}

// OrderID returns the order this countdown tracks.
func (c *Countdown) OrderID() string { return c.orderID }

// Start begins a run that calls observe on every tick. Starting a running
// countdown is a no-op. observe must not call Stop.
func (c *Countdown) Start(ctx context.Context, observe func(Tick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		select {
		case <-c.done:
			c.cancel()
		default:
			return
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.run(ctx, observe, done)
}

// Stop ends the current run and waits for it, so no observer call or ready
// transition happens after Stop returns.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current run ends; nil when stopped.
func (c *Countdown) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Fired reports whether the ready transition already happened.
func (c *Countdown) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

func (c *Countdown) run(ctx context.Context, observe func(Tick), done chan struct{}) {
	defer close(done)

	t := c.clock.NewTicker(c.interval)
	defer t.Stop()

	if c.step(ctx, observe) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if c.step(ctx, observe) {
				return
			}
		}
	}
}

// step emits one tick and reports whether the run is over.
func (c *Countdown) step(ctx context.Context, observe func(Tick)) bool {
	if ctx.Err() != nil {
		return true
	}
	remaining := c.deadline.Sub(c.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	if observe != nil {
		observe(Tick{
			OrderID:   c.orderID,
			Remaining: remaining,
			Seconds:   int64(remaining / time.Second),
			Display:   FormatRemaining(remaining),
			Ready:     remaining == 0,
		})
	}
	if remaining > 0 {
		return false
	}
	return c.fire(ctx)
}

// fire runs the ready transition once. A store failure keeps the run alive
// so the next tick retries.
func (c *Countdown) fire(ctx context.Context) bool {
	c.mu.Lock()
	already := c.fired
	c.mu.Unlock()
	if already {
		return true
	}

	logger := log.WithField("order_id", c.orderID)
	o, changed, err := c.marker.MarkReady(ctx, c.orderID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		logger.Info("countdown reached zero for a deleted order")
		return true
	case err != nil:
		logger.WithError(err).Warn("mark ready failed, retrying")
		return false
	}

	c.mu.Lock()
	c.fired = true
	c.mu.Unlock()

	if !changed {
		logger.WithField("status", o.Status).Debug("countdown reached zero, order already handed over")
		return true
	}

	if c.sink != nil && c.sink.RequestPermission() {
		c.sink.Notify(ctx, readyTitle, fmt.Sprintf("Pesanan %s sudah siap diambil.", c.orderID))
	}
	return true
}

// Dispatcher owns running countdowns so each view stops exactly its own.
type Dispatcher struct {
	marker   ReadyMarker
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	running map[*Countdown]struct{}
}

// NewDispatcher creates a dispatcher whose countdowns tick every interval.
func NewDispatcher(marker ReadyMarker, clock Clock, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		marker:   marker,
		clock:    clock,
		interval: interval,
		running:  make(map[*Countdown]struct{}),
	}
}

// Watch starts a countdown for o that notifies sink at zero. The caller
// stops it with Release when its view goes away.
func (d *Dispatcher) Watch(ctx context.Context, o models.Order, sink notify.Sink, observe func(Tick)) *Countdown {
	c := NewCountdown(o, d.marker, sink, d.clock, d.interval)
	d.mu.Lock()
	d.running[c] = struct{}{}
	d.mu.Unlock()
	c.Start(ctx, observe)
	return c
}

// Release stops c and forgets it.
func (d *Dispatcher) Release(c *Countdown) {
	c.Stop()
	d.mu.Lock()
	delete(d.running, c)
	d.mu.Unlock()
}

// StopOrder stops every countdown tracking id, used when an order is deleted.
func (d *Dispatcher) StopOrder(id string) int {
	d.mu.Lock()
	var victims []*Countdown
	for c := range d.running {
		if c.orderID == id {
			victims = append(victims, c)
			delete(d.running, c)
		}
	}
	d.mu.Unlock()

	for _, c := range victims {
		c.Stop()
	}
	return len(victims)
}

// StopAll stops every countdown, used on shutdown.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	all := make([]*Countdown, 0, len(d.running))
	for c := range d.running {
		all = append(all, c)
	}
	d.running = make(map[*Countdown]struct{})
	d.mu.Unlock()

	for _, c := range all {
		c.Stop()
	}
}

// Active returns the number of countdowns not yet released.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}
