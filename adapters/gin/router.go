package webhookgin

import (
	"net/http"
	"time"

	"github.com/PaulFidika/tpayhook/adapters/ginutil"
	webhookhttp "github.com/PaulFidika/tpayhook/adapters/http"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Paths mounted by Register.
const (
	NotificationPath     = "/api/tpay"
	NotificationTextPath = "/api/tpay/notification"
	HealthPath           = "/healthz"
)

// Register mounts the JSON endpoint, the plain-text endpoint, and a health check.
func Register(r gin.IRouter, rcv webhookhttp.Receiver, rl ginutil.RateLimiter) {
	r.POST(NotificationPath, HandleNotificationPOST(rcv, rl))
	r.POST(NotificationTextPath, RateLimited(rl, gin.WrapH(webhookhttp.NotificationHandler(rcv))))
	r.GET(HealthPath, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

// RequestLogger logs one entry per request.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"client":   c.ClientIP(),
			"duration": time.Since(start).String(),
		})
		switch s := c.Writer.Status(); {
		case s >= 500:
			entry.Error("http request")
		case s >= 400:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

// NewRouter builds a gin engine with recovery, request logging, and the
// notification routes.
func NewRouter(rcv webhookhttp.Receiver, rl ginutil.RateLimiter, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	Register(r, rcv, rl)
	return r
}
