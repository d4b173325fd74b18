package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger writes one line per API request. Probes and the websocket
// stream stay at debug.
func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	if h.log == nil {
		return
	}
	kv := []interface{}{
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	}
	if len(c.Errors) > 0 {
		kv = append(kv, "errors", c.Errors.String())
	}
	switch p := c.FullPath(); {
	case c.Writer.Status() >= 500:
		h.log.Warnw("http_request", kv...)
	case p == "/health" || p == "/ws" || p == "/swagger/*any":
		h.log.Debugw("http_request", kv...)
	default:
		h.log.Infow("http_request", kv...)
	}
}
