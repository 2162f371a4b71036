package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/techpress/core/internal/pkg/response"
)

const (
	rateLimitMax    = 50
	rateLimitWindow = time.Second
)

// RateLimit enforces a per-IP sliding window of 50 requests per second.
// Generation endpoints sit behind this; the AI provider's own rate-limit
// signal is handled separately by the retry policy.
func RateLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		windowKey := time.Now().Unix()
		key := fmt.Sprintf("tp:rate_limit:%s:%d", ip, windowKey)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble must not take the API down.
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > rateLimitMax {
			response.TooManyRequests(c, "slow down, too many requests")
			return
		}

		c.Next()
	}
}
