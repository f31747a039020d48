package services

import (
	"context"
	"sync"
	"time"

	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// fakeClock only moves when Advance is called. Advancing fires every ticker
// once.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()
	for _, t := range tickers {
		t.fire(now)
	}
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

type note struct {
	title, body string
}

type recordingSink struct {
	mu      sync.Mutex
	denied  bool
	notices []note
}

func (r *recordingSink) RequestPermission() bool { return !r.denied }

func (r *recordingSink) Notify(_ context.Context, title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, note{title, body})
}

func (r *recordingSink) all() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notices...)
}

type allowList map[string]bool

func (a allowList) Permitted(_ context.Context, actor string) bool { return a[actor] }

type memoryStatusLog struct {
	mu      sync.Mutex
	changes []models.StatusChange
}

func (m *memoryStatusLog) Record(_ context.Context, c models.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

func (m *memoryStatusLog) History(_ context.Context, id string) ([]models.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StatusChange
	for _, c := range m.changes {
		if c.OrderID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

type testEnv struct {
	mem       *store.MemoryStore
	orders    *store.OrderRepository
	signals   *store.SignalRepository
	cache     *store.CachedOrders
	clock     *fakeClock
	statusLog *memoryStatusLog
	lifecycle *Lifecycle
	sessions  *SessionService
	service   *OrderService
}

const staff = "stockwise"

func newTestEnv() *testEnv {
	mem := store.NewMemoryStore()
	orders := store.NewOrderRepository(mem)
	signals := store.NewSignalRepository(mem)
	cache := store.NewCachedOrders(orders)
	clock := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	statusLog := &memoryStatusLog{}
	eta := NewETAService(nil)
	sessions := NewSessionService(mem, clock)

	return &testEnv{
		mem:       mem,
		orders:    orders,
		signals:   signals,
		cache:     cache,
		clock:     clock,
		statusLog: statusLog,
		lifecycle: NewLifecycle(orders, signals, cache, allowList{staff: true}, clock).WithStatusLog(statusLog),
		sessions:  sessions,
		service:   NewOrderService(orders, cache, NewOrderBuilder(eta, clock), eta, sessions, clock).WithStatusLog(statusLog),
	}
}

func (e *testEnv) submit(name string, lines ...models.CartLine) models.Order {
	o, err := e.service.Submit(context.Background(), SubmitRequest{Items: lines, CustomerName: name, PaymentMethod: "cash"})
	if err != nil {
		panic(err)
	}
	return o
}
