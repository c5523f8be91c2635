// Package webhookgin mounts the notification receiver on a gin router.
package webhookgin

import (
	"errors"
	"io"
	"net/http"

	"github.com/PaulFidika/tpayhook/adapters/ginutil"
	webhookhttp "github.com/PaulFidika/tpayhook/adapters/http"
	"github.com/PaulFidika/tpayhook/webhook"
	"github.com/gin-gonic/gin"
)

// HandleNotificationPOST answers with JSON: {"result": true} when the
// notification was verified and accepted.
func HandleNotificationPOST(rcv webhookhttp.Receiver, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLNotification) {
			ginutil.TooMany(c)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, webhookhttp.MaxBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body_too_large"})
			return
		}
		out, err := rcv.Receive(c.Request.Context(), webhook.Request{
			Signature:   c.GetHeader(webhook.SignatureHeader),
			ContentType: c.ContentType(),
			Body:        body,
		})
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"result": true, "duplicate": out.Duplicate, "undecoded": out.Undecoded})
		case errors.Is(err, webhook.ErrUnavailable):
			ginutil.Unavailable(c)
		case errors.Is(err, webhook.ErrMissingSignature):
			ginutil.BadRequest(c, "missing_signature")
		case errors.Is(err, webhook.ErrInvalidSignature):
			ginutil.BadRequest(c, "invalid_signature")
		default:
			ginutil.BadRequest(c, "invalid_notification")
		}
	}
}

// RateLimited wraps a handler with the notification rate limit.
func RateLimited(rl ginutil.RateLimiter, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLNotification) {
			ginutil.TooMany(c)
			return
		}
		h(c)
	}
}
