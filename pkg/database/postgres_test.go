package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/stockbt/pkg/config"
)

func TestPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "db.local",
		Port:            "5433",
		Name:            "stockbt",
		User:            "bt",
		Password:        "secret",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
	}

	pc, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "db.local", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, "stockbt", pc.ConnConfig.Database)
}

func TestPoolConfig_URLWins(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		Host: "ignored",
		URL:  "postgres://u:p@primary:5432/market",
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", pc.ConnConfig.Host)
	assert.Equal(t, "market", pc.ConnConfig.Database)
}

func TestPoolConfig_BadURL(t *testing.T) {
	_, err := PoolConfig(config.DatabaseConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	// Skip if DATABASE_URL is not set
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, config.DatabaseConfig{URL: url})
	require.NoError(t, err)
	defer db.Close()

	status := db.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Error)
}
