package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/glamlot/glamlot/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyAdminTrigger = "admin:trigger:%s"

// NewRedisClient builds the shared redis client, or nil when no address
// is configured. Callers must tolerate a nil client: redis only guards
// rate limits and scheduler overlap, correctness never depends on it.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

// AdminLimiter bounds how often the admin trigger surface can be hit.
// Disabled (always allows) when redis is not configured.
type AdminLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewAdminLimiter(cfg config.Config, client *redis.Client) *AdminLimiter {
	if client == nil || cfg.AdminRateLimit.Rate <= 0 || cfg.AdminRateLimit.Burst <= 0 {
		return &AdminLimiter{}
	}
	return &AdminLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.AdminRateLimit.Rate,
		burst:   cfg.AdminRateLimit.Burst,
	}
}

func (l *AdminLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *AdminLimiter) Allow(ctx context.Context, caller string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAdminTrigger, strings.TrimSpace(caller)), l.rate, l.burst)
}
