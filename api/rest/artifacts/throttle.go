package artifacts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/logger"
)

const limiterPrefix = "throttle:download"

// builds the per-address download limiter. counters are shared through redis
// when a client is given, otherwise they live in this process
func NewLimiter(formatted string, client *redis.Client) (*limiter.Limiter, error) {
	if formatted == "" {
		formatted = DefaultRate
	}

	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid download rate %q: %w", formatted, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:   limiterPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          limiterPrefix,
			CleanUpInterval: time.Minute,
		})
	}

	return limiter.New(store, rate), nil
}

// rejects callers over the download rate. an unreachable store lets the request through
func Throttle(l *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		lctx, err := l.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WarnErr(err, "download limiter unavailable, allowing request",
				"ip", c.ClientIP(),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retry := max(lctx.Reset-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			errors.TooManyRequests(c, "too many download requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
