package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudsuite/cloudauth/internal/cache"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/logger"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

const ratelimitKeyPrefix = "ratelimit:"

// RateLimit limits requests per (clientIP, path) within a fixed window,
// counting in the shared cache so the limit holds across instances. A cache
// outage fails open: throttling is protection, not a correctness invariant.
func RateLimit(store cache.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := ratelimitKeyPrefix + c.ClientIP() + "|" + c.FullPath()
		count, resetIn, err := store.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("counter unavailable, allowing request",
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > int64(maxRequests) {
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
