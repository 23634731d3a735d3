package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Middleware 记录 gin 请求，5xx 记 error，4xx 记 warn
func Middleware(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()

		req := c.Request
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(begin)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		ctx := req.Context()
		switch {
		case status >= http.StatusInternalServerError:
			log.ErrorContext(ctx, "http request", fields...)
		case status >= http.StatusBadRequest:
			log.WarnContext(ctx, "http request", fields...)
		default:
			log.InfoContext(ctx, "http request", fields...)
		}
	}
}
