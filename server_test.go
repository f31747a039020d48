package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/config"
	"canteen/server/internal/events"
	"canteen/server/internal/notify"
)

func TestBuildCore_InMemory(t *testing.T) {
	t.Setenv("PRIMARY_OWNER_PASSWORD", "ferrari")
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	c, err := buildCore(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, events.NopPublisher{}, c.events)
	assert.True(t, c.owners.Permitted(ctx, cfg.PrimaryOwner))
	require.NoError(t, c.store.Ping(ctx))

	require.NoError(t, submitDemoOrder(ctx, c.service, 0))
	require.NoError(t, submitDemoOrder(ctx, c.service, len(demoCustomers)))
	orders, _, err := c.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "Budi", orders[0].CustomerName)
	assert.Equal(t, "Budi 2", orders[1].CustomerName)
	assert.Greater(t, orders[1].ETAMinutes, orders[0].ETAMinutes)
}

func TestBuildCore_BadTimingFile(t *testing.T) {
	t.Setenv("MENU_TIMING_FILE", t.TempDir()+"/missing.json")
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = buildCore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNotificationSink_LogOnlyWithoutRabbit(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	sink, closeSink := notificationSink(cfg)
	defer closeSink()
	assert.IsType(t, notify.LogSink{}, sink)
	assert.True(t, sink.RequestPermission())
}
