// Package ratelimit throttles abuse-prone endpoints per client IP.
package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const keyPrefix = "legalmp:ratelimit"

// NewStore returns a Redis-backed store when redisURL is set, so several
// instances share counters, and an in-process store otherwise. The returned
// close func releases the Redis client.
func NewStore(redisURL string) (limiter.Store, func() error, error) {
	if redisURL == "" {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          keyPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	st, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: keyPrefix})
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis rate limit store: %w", err)
	}
	return st, rdb.Close, nil
}

// New allows limit requests per period for each client IP. name separates
// the counters of routes that share a store.
func New(store limiter.Store, name string, limit int64, period time.Duration, log *zap.Logger) fiber.Handler {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = time.Minute
	}
	instance := limiter.New(store, limiter.Rate{Period: period, Limit: limit})

	return func(c *fiber.Ctx) error {
		lc, err := instance.Get(c.UserContext(), name+":"+c.IP())
		if err != nil {
			// fail open when the store is unreachable
			log.Warn("rate limit store error", zap.String("limiter", name), zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
