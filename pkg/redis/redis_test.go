package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/stockbt/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	st, err := client.Ping(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, st.TotalConns)
	assert.NoError(t, client.Close())
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	// When Redis is disabled, cache operations should be no-ops
	require.NoError(t, cache.Set(ctx, "key", "value", TTLShort))

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestCacheKeys(t *testing.T) {
	cache := NewCache(Disabled(), "stockbt")
	assert.Equal(t, "stockbt:cache:scores:abc", cache.Key(ScoreMatrixKey("abc")))
}

func TestCache_RoundTrip(t *testing.T) {
	if os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, config.RedisConfig{
		Enabled: true,
		Host:    os.Getenv("REDIS_HOST"),
		Port:    "6379",
	})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "test")
	type payload struct{ A []float64 }
	require.NoError(t, cache.Set(ctx, "rt", payload{A: []float64{0.25, 0.5}}, time.Minute))

	var got payload
	found, err := cache.Get(ctx, "rt", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []float64{0.25, 0.5}, got.A)
	require.NoError(t, cache.Delete(ctx, "rt"))
}
