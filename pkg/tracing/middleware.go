package tracing

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const httpTracer = "scatter.http"

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middleware)

// WithFilter fn 返回 false 的请求不创建 span
func WithFilter(fn func(*gin.Context) bool) MiddlewareOption {
	return func(m *middleware) { m.filter = fn }
}

type middleware struct {
	filter func(*gin.Context) bool
}

// Middleware 延续上游 traceparent 创建 server span，并把 traceparent 写回响应头
func Middleware(opts ...MiddlewareOption) gin.HandlerFunc {
	m := &middleware{}
	for _, opt := range opts {
		opt(m)
	}
	return m.handle
}

func (m *middleware) handle(c *gin.Context) {
	if m.filter != nil && !m.filter(c) {
		c.Next()
		return
	}

	req := c.Request
	route := c.FullPath()
	name := req.Method + " " + route
	if route == "" {
		name = req.Method + " " + req.URL.Path
	}

	prop := otel.GetTextMapPropagator()
	ctx := prop.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
	ctx, span := otel.Tracer(httpTracer).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.HTTPRoute(route),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginal(req.UserAgent()),
			attribute.String("client.ip", c.ClientIP()),
		),
	)
	defer span.End()

	c.Request = req.WithContext(ctx)
	prop.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))
	c.Next()

	status := c.Writer.Status()
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}
}
