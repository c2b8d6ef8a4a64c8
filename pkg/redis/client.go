package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/stockbt/pkg/config"
)

// Client holds the optional score-cache connection
// ⭐ SSOT: Redis 연결은 여기서만 관리
// 비활성화 상태에서도 nil 이 아닌 Client 를 반환하며 모든 연산은 no-op
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New creates a new Redis client
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 연결 실패 시 호출 측에서 캐시 없이 진행
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{
		rdb:     rdb,
		enabled: true,
	}, nil
}

// Disabled returns a client whose operations are no-ops
func Disabled() *Client {
	return &Client{enabled: false}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Ping checks the connection and reports pool usage
// 비활성화 상태는 항상 성공
func (c *Client) Ping(ctx context.Context) (PoolStats, error) {
	if !c.enabled {
		return PoolStats{}, nil
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return PoolStats{}, fmt.Errorf("redis ping: %w", err)
	}
	st := c.rdb.PoolStats()
	return PoolStats{TotalConns: st.TotalConns, IdleConns: st.IdleConns, Hits: st.Hits, Misses: st.Misses}, nil
}

// PoolStats redis 커넥션 풀 상태
type PoolStats struct {
	TotalConns uint32
	IdleConns  uint32
	Hits       uint32
	Misses     uint32
}
