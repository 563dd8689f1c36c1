package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFailureLimit is the number of failed logins that locks an email.
const DefaultFailureLimit = 5

// Config holds login lockout tuning parameters.
type Config struct {
	FailureLimit     int
	Cooldown         time.Duration // 0 = locked until Reset
	EnableIPThrottle bool
}

// Limiter locks out login attempts per normalized email, and optionally per
// client IP, once FailureLimit consecutive failures are recorded.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a login [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check returns ErrLockedOut when the email or IP has reached the limit.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, loginUserKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts a failed login. crossed is true for exactly the
// failure that brought the email to the limit, so the lockout callback
// fires once per lockout.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) (crossed bool, err error) {
	count, err := l.incrementWithTTL(ctx, loginUserKey(email))
	if err != nil {
		return false, err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip)); err != nil {
			return false, err
		}
	}

	return count == int64(l.config.FailureLimit), nil
}

// Reset clears the counters after a successful login or a completed
// password reset.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	keys := []string{loginUserKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current count for email. Missing keys return zero
// and do not reveal account existence.
func (l *Limiter) Failures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, loginUserKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.FailureLimit) {
		return ErrLockedOut
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 && l.config.Cooldown > 0 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
