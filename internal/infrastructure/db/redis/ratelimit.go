package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter is a fixed-window request counter backed by Redis. It
// satisfies echo's middleware.RateLimiterStore.
// Key format: ratelimit:<identifier>:<window_start_unix>
type RateLimiter struct {
	client  *redis.Client
	max     int64
	window  time.Duration
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewRateLimiter allows max requests per identifier in every window.
func NewRateLimiter(client *redis.Client, max int, window time.Duration, log zerolog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		client:  client,
		max:     int64(max),
		window:  window,
		timeout: defaultTimeout,
		log:     log,
		now:     time.Now,
	}
}

// Allow reports whether identifier may make another request. When Redis is
// unreachable the request is allowed and the failure is logged.
func (l *RateLimiter) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	count, err := l.hit(ctx, identifier)
	if err != nil {
		l.log.Warn().Err(err).Str("identifier", identifier).Msg("rate limiter unavailable, allowing request")
		return true, nil
	}
	return count <= l.max, nil
}

// hit increments the counter for the current window and returns its value.
func (l *RateLimiter) hit(ctx context.Context, identifier string) (int64, error) {
	key := l.key(identifier)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val(), nil
}

func (l *RateLimiter) key(identifier string) string {
	start := l.now().Truncate(l.window)
	return fmt.Sprintf("ratelimit:%s:%d", identifier, start.Unix())
}
