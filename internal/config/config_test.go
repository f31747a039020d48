package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.ServerPort)
	assert.Equal(t, "50051", c.GRPCPort)
	assert.Equal(t, "canteen.orders", c.KafkaTopic)
	assert.Equal(t, 3*time.Second, c.ReadyPollInterval)
	assert.Equal(t, time.Second, c.CountdownTick)
	assert.Equal(t, "stockwise", c.PrimaryOwner)
	assert.Equal(t, "poll", c.ReadyWatchMode)
	assert.False(t, c.UseRedis())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_SENTINEL_ADDRS", "a:26379,b:26379")
	t.Setenv("REDIS_MASTER_NAME", "mymaster")
	t.Setenv("READY_POLL_INTERVAL", "500ms")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", c.ServerPort)
	assert.Equal(t, []string{"a:26379", "b:26379"}, c.RedisSentinelAddrs)
	assert.Equal(t, 500*time.Millisecond, c.ReadyPollInterval)
	assert.True(t, c.UseRedis())
}

func TestLoad_RejectsSlowCountdown(t *testing.T) {
	t.Setenv("COUNTDOWN_TICK", "5s")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownWatchMode(t *testing.T) {
	t.Setenv("READY_WATCH_MODE", "push")
	_, err := Load()
	assert.Error(t, err)
}
