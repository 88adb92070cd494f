package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/pkg/redisc"
	"github.com/lumenfest/core/internal/pkg/response"
)

const (
	floodMax    = 50
	floodWindow = time.Second
)

// FloodGuard is a coarse per-IP request cap in front of the whole API. It is
// not the subscription admission limiter; it only keeps a single client from
// flooding the process. Fails open when Redis is unavailable.
func FloodGuard(rc *redisc.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("lumenfest:flood:%s:%d", ip, time.Now().Unix())

		count, err := rc.Raw().Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rc.Raw().PExpire(ctx, key, floodWindow+time.Second)
		}

		if count > floodMax {
			response.RateLimited(c, 1, "slow down")
			return
		}

		c.Next()
	}
}
