package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptConfig holds configuration for the failed-attempt tracker.
type AttemptConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	KeyPrefix string
}

var (
	// ErrAttemptsUnavailable indicates the attempt backend is unreachable.
	ErrAttemptsUnavailable = errors.New("attempt backend unavailable")
)

// AttemptTracker counts consecutive failed login attempts per identifier in a
// fixed window and reports when the lockout threshold is reached.
type AttemptTracker struct {
	redis  redis.UniversalClient
	config AttemptConfig
}

// NewAttemptTracker creates a new attempt tracker.
func NewAttemptTracker(redisClient redis.UniversalClient, cfg AttemptConfig) *AttemptTracker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "id"
	}
	return &AttemptTracker{redis: redisClient, config: cfg}
}

func (t *AttemptTracker) key(identifier string) string {
	return t.config.KeyPrefix + ":la:" + identifier
}

// RecordFailure increments the failure counter for an identifier.
// Returns true if the threshold has been reached (caller should lock the account).
func (t *AttemptTracker) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	if !t.config.Enabled || identifier == "" {
		return false, nil
	}

	count, err := t.redis.Incr(ctx, t.key(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}

	if count == 1 && t.config.Window > 0 {
		// TTL on first failure makes the counter a rolling window.
		if err := t.redis.Expire(ctx, t.key(identifier), t.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
		}
	}

	return count >= int64(t.config.Threshold), nil
}

// Reset clears the failure counter for an identifier (after successful login or manual unlock).
func (t *AttemptTracker) Reset(ctx context.Context, identifier string) error {
	if !t.config.Enabled || identifier == "" {
		return nil
	}

	if err := t.redis.Del(ctx, t.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// Count returns the current failure count for an identifier.
func (t *AttemptTracker) Count(ctx context.Context, identifier string) (int, error) {
	if !t.config.Enabled || identifier == "" {
		return 0, nil
	}

	count, err := t.redis.Get(ctx, t.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return int(count), nil
}
