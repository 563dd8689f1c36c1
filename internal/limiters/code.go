package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCodeMaxAttempts = 5
	defaultCodeCooldown    = time.Minute
)

var (
	ErrCodeRateLimited = errors.New("security code attempts exhausted")
	ErrCodeUnavailable = errors.New("security code limiter unavailable")
)

// CodeLimiterConfig holds thresholds for one-time code guesses.
type CodeLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// CodeLimiter caps wrong MFA code guesses per user so a six-digit code
// cannot be brute forced inside its lifetime.
type CodeLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

// NewCodeLimiter creates a limiter. Zero-value fields fall back to
// 5 attempts per minute.
func NewCodeLimiter(redisClient redis.UniversalClient, cfg CodeLimiterConfig) *CodeLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultCodeMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCodeCooldown
	}
	return &CodeLimiter{redis: redisClient, maxAttempts: int64(max), cooldown: cd}
}

func (l *CodeLimiter) key(userID string) string {
	return "amc:" + userID
}

func (l *CodeLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrCodeRateLimited
	}
	return nil
}

func (l *CodeLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(userID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
		}
	}
	return nil
}

func (l *CodeLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return nil
}
