// Package ginutil holds small helpers shared by the gin handlers.
package ginutil

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateLimiter admits or denies a request for key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Limiter names.
const (
	RLNotification = "tpay_notification"
)

// AllowNamed checks rl for the named bucket keyed by client IP. A nil limiter
// admits everything; a limiter error admits the request so an outage of the
// limiter backend does not drop payment notifications.
func AllowNamed(c *gin.Context, rl RateLimiter, name string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.Allow(c.Request.Context(), name+":"+c.ClientIP())
	if err != nil {
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func Unavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
}
