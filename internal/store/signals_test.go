package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRepository_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	signals := NewSignalRepository(NewMemoryStore())

	ok, err := signals.Consume(ctx, "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, signals.Raise(ctx, "ORD-1"))
	require.NoError(t, signals.Raise(ctx, "ORD-1"))

	pending, err := signals.Pending(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, pending)

	ok, err = signals.Consume(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = signals.Consume(ctx, "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalRepository_Clear(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	signals := NewSignalRepository(mem)
	require.NoError(t, signals.Raise(ctx, "ORD-1"))
	require.NoError(t, signals.Clear(ctx, "ORD-1"))
	assert.Empty(t, mem.Paths())
}

func TestSignalRepository_ConcurrentConsumersNotifyOnce(t *testing.T) {
	ctx := context.Background()
	signals := NewSignalRepository(NewMemoryStore())

	for round := 0; round < 50; round++ {
		require.NoError(t, signals.Raise(ctx, "ORD-1"))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := signals.Consume(ctx, "ORD-1")
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load(), "round %d", round)
	}
}

func TestSignalRepository_SharedRedisConsumesOnce(t *testing.T) {
	ctx := context.Background()
	first, mr := newRedisStore(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	second := NewRedisStore(client)

	a := NewSignalRepository(first)
	b := NewSignalRepository(second)
	require.NoError(t, a.Raise(ctx, "ORD-1"))

	ok, err := b.Consume(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Consume(ctx, "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("canteen:"+SignalPath("ORD-1")))
}
