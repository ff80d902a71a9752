package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/hawker-checkout/pkg/httpmiddleware"
)

const rateKeyPrefix = "hawker:ratelimit:"

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter is a fixed window request counter shared by all API
// replicas.
type RateLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows max requests per key in each window.
func NewRateLimiter(client *redis.Client, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request for key in the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (httpmiddleware.Decision, error) {
	start := l.now().Truncate(l.window)
	redisKey := rateKeyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.PExpire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrapf(err, "count %s", key)
	}

	n := int(incr.Val())
	return httpmiddleware.Decision{
		Allowed:   n <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   start.Add(l.window),
	}, nil
}
