package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup connectivity check
const pingTimeout = 5 * time.Second

var errRedisDisabled = errors.New("redis is disabled")

// RedisClient is the optional shared limiter backend. A nil or disabled
// client is valid and means the limiter runs in memory.
type RedisClient struct {
	client *redis.Client
	addr   string
}

// redisOptions keeps the pool small: the limiter issues one GCRA script call
// per api request.
func redisOptions(addr, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  pingTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	}
}

// NewRedisClient connects to addr and pings it once. An empty addr returns a
// disabled client and no error. A failed ping returns a disabled client and
// the ping error so the caller can decide whether to continue.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	if addr == "" {
		slog.Info("Redis not configured, rate limiting stays in memory")
		return &RedisClient{}, nil
	}

	client := redis.NewClient(redisOptions(addr, password, db))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		slog.Error("Redis unreachable, rate limiting falls back to memory", "addr", addr, "error", err)
		return &RedisClient{addr: addr}, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return &RedisClient{client: client, addr: addr}, nil
}

// GetClient returns the go-redis client, nil when disabled
func (r *RedisClient) GetClient() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// IsEnabled reports whether Redis answered the startup ping
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.client != nil
}

// HealthCheck pings Redis; used by /health to report a degraded limiter
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return errRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	if !r.IsEnabled() {
		return nil
	}
	return r.client.Close()
}

// GetPoolStats reports connection pool counters for /health
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() {
		return map[string]interface{}{"enabled": false}
	}

	ps := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        ps.Hits,
		"misses":      ps.Misses,
		"timeouts":    ps.Timeouts,
		"total_conns": ps.TotalConns,
		"idle_conns":  ps.IdleConns,
		"stale_conns": ps.StaleConns,
	}
}
