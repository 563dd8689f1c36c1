package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxFailures is the sensitive-action lockout threshold.
const DefaultMaxFailures = 5

// ErrFailureCounterUnavailable indicates the counter backend is unreachable.
var ErrFailureCounterUnavailable = errors.New("failure counter unavailable")

// FailureCounterConfig holds the sensitive-action failure policy.
type FailureCounterConfig struct {
	Max    int
	Window time.Duration // 0 = count until Reset
}

// FailureCounter counts consecutive failed re-authentications per user for
// password and email changes. Increments are a single Redis INCR so parallel
// requests never lose an update.
type FailureCounter struct {
	redis  redis.UniversalClient
	config FailureCounterConfig
}

// NewFailureCounter creates a counter. A zero Max falls back to
// DefaultMaxFailures.
func NewFailureCounter(redisClient redis.UniversalClient, cfg FailureCounterConfig) *FailureCounter {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxFailures
	}
	return &FailureCounter{redis: redisClient, config: cfg}
}

func (c *FailureCounter) key(userID string) string {
	return "afc:" + userID
}

// Max returns the configured threshold.
func (c *FailureCounter) Max() int {
	return c.config.Max
}

// RecordFailure increments and returns the new count.
func (c *FailureCounter) RecordFailure(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	count, err := c.redis.Incr(ctx, c.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailureCounterUnavailable, err)
	}
	if count == 1 && c.config.Window > 0 {
		if err := c.redis.Expire(ctx, c.key(userID), c.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFailureCounterUnavailable, err)
		}
	}
	return int(count), nil
}

// Reset sets the count back to zero.
func (c *FailureCounter) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailureCounterUnavailable, err)
	}
	return nil
}

// Count returns the current count.
func (c *FailureCounter) Count(ctx context.Context, userID string) (int, error) {
	count, err := c.redis.Get(ctx, c.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrFailureCounterUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// HasExceeded reports count >= max. A non-positive max uses the configured
// threshold.
func (c *FailureCounter) HasExceeded(ctx context.Context, userID string, max int) (bool, error) {
	if max <= 0 {
		max = c.config.Max
	}
	count, err := c.Count(ctx, userID)
	if err != nil {
		return false, err
	}
	return count >= max, nil
}
