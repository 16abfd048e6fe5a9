package counter

import (
	"context"
	"errors"
	"time"
)

// wraps every transport-level failure so callers can fail open on it
var ErrUnavailable = errors.New("counter store unavailable")

// shared counter store used for per-caller rate windows.
// Incr must be atomic across every instance sharing the store
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// remaining lifetime; zero or negative when the key is missing or has no expiry
	TTL(ctx context.Context, key string) (time.Duration, error)
	// returns "" and no error for a missing key
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
