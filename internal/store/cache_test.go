package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/models"
)

// flakyStore fails every call while down is set.
type flakyStore struct {
	*MemoryStore
	down bool
}

func (f *flakyStore) fail(op string) error {
	return &models.StoreUnavailableError{Op: op, Err: errors.New("connection refused")}
}

func (f *flakyStore) Get(ctx context.Context, path string, dest any) error {
	if f.down {
		return f.fail("get")
	}
	return f.MemoryStore.Get(ctx, path, dest)
}

func (f *flakyStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	if f.down {
		return nil, f.fail("list")
	}
	return f.MemoryStore.List(ctx, prefix)
}

func TestCachedOrders_FallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{MemoryStore: NewMemoryStore()}
	repo := NewOrderRepository(fs)
	cache := NewCachedOrders(repo)

	require.NoError(t, repo.Save(ctx, models.Order{ID: "ORD-1", CustomerName: "Ani", CreatedAt: time.Now().UTC()}))

	live, stale, err := cache.All(ctx)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, live, 1)
	assert.False(t, cache.TakenAt().IsZero())

	fs.down = true
	snap, stale, err := cache.All(ctx)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "ORD-1", snap[0].ID)

	one, stale, err := cache.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "Ani", one.CustomerName)

	cache.Forget("ORD-1")
	_, _, err = cache.Get(ctx, "ORD-1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestCachedOrders_NoSnapshotSurfacesError(t *testing.T) {
	fs := &flakyStore{MemoryStore: NewMemoryStore(), down: true}
	cache := NewCachedOrders(NewOrderRepository(fs))

	_, _, err := cache.All(context.Background())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestCachedOrders_NotFoundIsNotMasked(t *testing.T) {
	cache := NewCachedOrders(NewOrderRepository(NewMemoryStore()))
	_, _, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
