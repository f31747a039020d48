package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// outageStore fails reads while down is set.
type outageStore struct {
	*store.MemoryStore
	down bool
}

func (o *outageStore) Get(ctx context.Context, path string, dest any) error {
	if o.down {
		return &models.StoreUnavailableError{Op: "get", Err: errors.New("connection refused")}
	}
	return o.MemoryStore.Get(ctx, path, dest)
}

func (o *outageStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	if o.down {
		return nil, &models.StoreUnavailableError{Op: "list", Err: errors.New("connection refused")}
	}
	return o.MemoryStore.List(ctx, prefix)
}

func TestOrderService_StaleReadsCarrySnapshotTime(t *testing.T) {
	ctx := context.Background()
	st := &outageStore{MemoryStore: store.NewMemoryStore()}
	orders := store.NewOrderRepository(st)
	cache := store.NewCachedOrders(orders)
	clock := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	eta := NewETAService(nil)
	svc := NewOrderService(orders, cache, NewOrderBuilder(eta, clock), eta, NewSessionService(st, clock), clock)

	o, err := svc.Submit(ctx, SubmitRequest{Items: []models.CartLine{line("Kopi", 1)}, CustomerName: "Ani", PaymentMethod: "cash"})
	require.NoError(t, err)

	view, err := svc.LiveETA(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, view.Stale)
	assert.Nil(t, view.StaleSince)

	st.down = true
	view, err = svc.LiveETA(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, view.Stale)
	require.NotNil(t, view.StaleSince)
	assert.Equal(t, svc.SnapshotAt(), *view.StaleSince)
	assert.False(t, view.StaleSince.IsZero())
}

func TestOrderService_ProcessingOrderStaysInBacklog(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	first := env.submit("Ani", line("Seblak", 1))
	_, err := env.lifecycle.Advance(ctx, staff, first.ID)
	require.NoError(t, err)

	second := env.submit("Budi", line("Cireng", 1))
	assert.Equal(t, 20, second.ETAMinutes)
}

func TestOrderService_SameInstantKeepsSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	var submitted []models.Order
	for i := 0; i < 12; i++ {
		submitted = append(submitted, env.submit("Dewi", line("Cireng", 1)))
	}

	listed, _, err := env.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, len(submitted))
	for i := range submitted {
		assert.Equal(t, submitted[i].ID, listed[i].ID, "position %d", i)
	}

	prep := env.service.eta.PrepMinutes(submitted[0])
	view, err := env.service.LiveETA(ctx, submitted[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2*prep, view.QueueMinutes)
	assert.Equal(t, 2*prep, submitted[1].ETAMinutes)
}

func TestOrderService_DeadlineIsFixedAtCreation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	first := env.submit("Ani", line("Seblak", 1))
	second := env.submit("Budi", line("Cireng", 1))
	require.NoError(t, env.lifecycle.Delete(ctx, staff, first.ID))

	stored, _, err := env.service.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.ETAMinutes)
	assert.Equal(t, second.ETADeadline, stored.ETADeadline)

	view, err := env.service.LiveETA(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.QueueMinutes)
	assert.Equal(t, "20:00", view.Display)
}

func TestOrderService_SubmitFromSessionCart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.sessions.AddToCart(ctx, "s1", models.CartLine{Name: "Mie Ayam", UnitPrice: 15000, Quantity: 1})
	require.NoError(t, err)
	_, err = env.sessions.AddToCart(ctx, "s1", models.CartLine{Name: "Mie Ayam", UnitPrice: 15000, Quantity: 1})
	require.NoError(t, err)

	o, err := env.service.Submit(ctx, SubmitRequest{SessionID: "s1", CustomerName: "Ani", PaymentMethod: "tunai"})
	require.NoError(t, err)
	assert.Equal(t, 30, o.ETAMinutes)
	assert.Equal(t, int64(30000), o.Total)
	assert.Equal(t, "s1", o.SessionID)

	sess, err := env.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.Cart)
	assert.Equal(t, []string{o.ID}, sess.Watched)

	mine, _, err := env.service.ForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o.ID, mine[0].ID)
}

func TestOrderService_SubmitValidation(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.Submit(context.Background(), SubmitRequest{SessionID: "empty", CustomerName: "Ani", PaymentMethod: "cash"})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.EqualError(t, err, "empty cart")

	orders, _, err := env.service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderService_LiveETA(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	o := env.submit("Ani", line("Bakso", 1))

	env.clock.Advance(4*time.Minute + 30*time.Second)
	view, err := env.service.LiveETA(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "05:30", view.Display)
	assert.False(t, view.Ready)
	assert.Equal(t, 10, view.QueueMinutes)

	_, _, err = env.lifecycle.MarkReady(ctx, o.ID)
	require.NoError(t, err)
	view, err = env.service.LiveETA(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, view.Ready)
	assert.Equal(t, "Siap diambil", view.Display)

	_, err = env.service.LiveETA(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
