package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRequestRateLimited    = errors.New("request rate limited")
	ErrRequestLimiterBackend = errors.New("request limiter unavailable")
)

// RequestLimiterConfig configures a fixed-window throttle for
// unauthenticated requests such as registrations and reset emails.
type RequestLimiterConfig struct {
	Namespace                string
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxAttempts              int
}

// RequestLimiter counts requests per identifier and per client IP.
type RequestLimiter struct {
	redis  redis.UniversalClient
	config RequestLimiterConfig
}

func NewRequestLimiter(redisClient redis.UniversalClient, cfg RequestLimiterConfig) *RequestLimiter {
	if cfg.Namespace == "" {
		cfg.Namespace = "req"
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &RequestLimiter{redis: redisClient, config: cfg}
}

// Allow records one request and returns ErrRequestRateLimited once either
// window is over budget.
func (l *RequestLimiter) Allow(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle && identifier != "" {
		if err := l.enforceFixedWindow(ctx, l.identifierKey(identifier)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RequestLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestLimiterBackend, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRequestLimiterBackend, err)
		}
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRequestRateLimited
	}
	return nil
}

func (l *RequestLimiter) identifierKey(identifier string) string {
	return "arq:" + l.config.Namespace + ":id:" + identifier
}

func (l *RequestLimiter) ipKey(ip string) string {
	return "arq:" + l.config.Namespace + ":ip:" + ip
}
