// ratelimit_redis.go provides a Redis-backed rate limiter for multi-instance
// deployments. The in-memory limiter in ratelimit.go counts per process, so
// behind a load balancer each instance would grant the full budget; backing
// the counters with Redis makes the limit global across instances.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces rate limits using Redis GCRA counters shared by
// all server instances.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	client  *redis.Client
	config  RateLimitConfig
}

// NewRedisRateLimiter connects to Redis at addr and returns a limiter with
// the given budget. The connection is verified lazily on first use; Redis
// being down degrades to allowing requests rather than failing them.
func NewRedisRateLimiter(addr string, config RateLimitConfig) *RedisRateLimiter {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		client:  client,
		config:  config,
	}
}

// Close releases the underlying Redis connection.
func (rl *RedisRateLimiter) Close() error {
	return rl.client.Close()
}

// Middleware returns a Gin handler enforcing the limiter's budget per client key.
func (rl *RedisRateLimiter) Middleware() gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   rl.config.RequestsPerMinute,
		Burst:  rl.config.BurstSize,
		Period: time.Minute,
	}

	return func(c *gin.Context) {
		key := rateLimitKey(c)

		res, err := rl.limiter.Allow(c.Request.Context(), "ratelimit:"+key, limit)
		if err != nil {
			// Redis outage must not take the API down with it.
			slog.Warn("redis rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
