package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute int // sustained requests per minute per client
	Burst     int // requests allowed back to back
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute: 120,
		Burst:     20,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter limits requests per client through Redis when available and
// an in-memory token bucket otherwise.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter. A nil or disabled client selects the
// in-memory limiter.
func NewRateLimiter(redisClient *RedisClient, config Config) *RateLimiter {
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupFallbackLimiters(time.Hour)

	return rl
}

// AllowIP checks whether a client IP may make another request
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.allow(ctx, fmt.Sprintf("ratelimit:ip:%s", ip))
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
	}
	return rl.allowFallback(key), nil
}

// allowRedis uses the GCRA limiter shared by every replica
func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (*Result, error) {
	limit := redis_rate.Limit{
		Rate:   rl.config.PerMinute,
		Burst:  rl.config.Burst,
		Period: time.Minute,
	}

	res, err := rl.redisLimiter.Allow(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      rl.config.PerMinute,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback uses a per-key token bucket local to this process
func (rl *RateLimiter) allowFallback(key string) *Result {
	rl.fallbackMutex.Lock()
	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(float64(rl.config.PerMinute)/60), rl.config.Burst)
		rl.fallbackLimiters[key] = limiter
	}
	rl.fallbackMutex.Unlock()

	now := time.Now()
	allowed := limiter.AllowN(now, 1)
	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     rl.config.PerMinute,
		Remaining: remaining,
		ResetAt:   now.Add(time.Minute),
	}
	if !allowed {
		perToken := time.Duration(float64(time.Minute) / float64(rl.config.PerMinute))
		result.RetryAfter = perToken
		result.ResetAt = now.Add(perToken)
	}
	return result
}

func (rl *RateLimiter) cleanupFallbackLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.fallbackMutex.Lock()
			if len(rl.fallbackLimiters) > 1000 {
				slog.Info("Cleaning up fallback rate limiters", "count", len(rl.fallbackLimiters))
				rl.fallbackLimiters = make(map[string]*rate.Limiter)
			}
			rl.fallbackMutex.Unlock()
		}
	}
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	return map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
		"per_minute":        rl.config.PerMinute,
		"burst":             rl.config.Burst,
		"redis_pool":        rl.redisClient.GetPoolStats(),
	}
}
