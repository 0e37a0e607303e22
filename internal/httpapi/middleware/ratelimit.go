package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit caps requests per authenticated user. Limiter errors let the
// request through.
func RateLimit(l Limiter, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		allowed, err := l.Allow(c.Request.Context(), "send:"+uid, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("user_id", uid), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			common.Abort(c, http.StatusTooManyRequests, 42901, "too many messages, slow down")
			return
		}
		c.Next()
	}
}
