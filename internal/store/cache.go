package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"canteen/server/internal/models"
)

// CachedOrders remembers the last order list read successfully and serves it
// when the store is unreachable.
type CachedOrders struct {
	repo *OrderRepository

	mu      sync.RWMutex
	orders  []models.Order
	takenAt time.Time
	has     bool
}

// NewCachedOrders wraps repo.
func NewCachedOrders(repo *OrderRepository) *CachedOrders {
	return &CachedOrders{repo: repo}
}

// All returns the live order list, or the snapshot with stale=true when the
// store is unavailable. Without a snapshot the store error is returned.
func (c *CachedOrders) All(ctx context.Context) (orders []models.Order, stale bool, err error) {
	live, err := c.repo.All(ctx)
	if err == nil {
		c.remember(live)
		return cloneOrders(live), false, nil
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.has {
		return nil, false, err
	}
	return cloneOrders(c.orders), true, nil
}

// Get returns one order, falling back to the snapshot on store failure.
func (c *CachedOrders) Get(ctx context.Context, id string) (models.Order, bool, error) {
	o, err := c.repo.Get(ctx, id)
	if err == nil {
		c.Put(o)
		return o, false, nil
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		return models.Order{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cached := range c.orders {
		if cached.ID == id {
			return cached.Clone(), true, nil
		}
	}
	return models.Order{}, false, err
}

// Put records a write made through the live store so the snapshot does not
// lag behind this process's own changes.
func (c *CachedOrders) Put(o models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ID == o.ID {
			c.orders[i] = o.Clone()
			return
		}
	}
	if c.has {
		c.orders = append(c.orders, o.Clone())
		sortQueue(c.orders)
	}
}

// Forget drops an order from the snapshot.
func (c *CachedOrders) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ID == id {
			c.orders = append(c.orders[:i], c.orders[i+1:]...)
			return
		}
	}
}

// TakenAt is when the snapshot was last refreshed.
func (c *CachedOrders) TakenAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.takenAt
}

func (c *CachedOrders) remember(orders []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = cloneOrders(orders)
	c.takenAt = time.Now().UTC()
	c.has = true
}

func cloneOrders(in []models.Order) []models.Order {
	out := make([]models.Order, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}
