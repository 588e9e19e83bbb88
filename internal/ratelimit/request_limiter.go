package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"time"

	"github.com/mealforge/mealforge/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyDebitUser    = "credits:debit:user:%s"
	keyUsageUser    = "usage:record:user:%s"
	keyEvaluateLock = "achievements:evaluate:lock:%s"

	evaluateLockTTL = 10 * time.Second
)

// RequestLimiter throttles per-user debit and usage-record traffic. Disabled
// unless configured; a nil limiter allows everything.
type RequestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	debitRate  float64
	debitBurst int
	usageRate  float64
	usageBurst int
}

func NewRequestLimiter(cfg config.Config) (*RequestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.DebitRate <= 0 || limitCfg.DebitBurst <= 0 {
		return nil, errors.New("debit rate limit must be positive")
	}
	if limitCfg.UsageRate <= 0 || limitCfg.UsageBurst <= 0 {
		return nil, errors.New("usage rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &RequestLimiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client),
		debitRate:  limitCfg.DebitRate,
		debitBurst: limitCfg.DebitBurst,
		usageRate:  limitCfg.UsageRate,
		usageBurst: limitCfg.UsageBurst,
	}, nil
}

func (l *RequestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *RequestLimiter) AllowDebit(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDebitUser, strings.TrimSpace(userID)), l.debitRate, l.debitBurst)
}

func (l *RequestLimiter) AllowUsage(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageUser, strings.TrimSpace(userID)), l.usageRate, l.usageBurst)
}

// TryLockEvaluate serializes redundant evaluate calls for one user. Losing
// the race is harmless; the unlock-record unique constraint is what makes
// evaluation exactly-once.
func (l *RequestLimiter) TryLockEvaluate(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyEvaluateLock, strings.TrimSpace(userID)), evaluateLockTTL)
}

func (l *RequestLimiter) ReleaseEvaluate(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyEvaluateLock, strings.TrimSpace(userID)), token)
}
