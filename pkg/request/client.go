package request

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/logger"
)

const (
	tracerName = "scatter.request"

	// maxResponseBody 读取响应体的上限，超出部分丢弃
	maxResponseBody = 1 << 20
)

// Client 出站 HTTP 客户端，带重试与链路追踪
type Client struct {
	cfg    *Config
	http   *http.Client
	tracer trace.Tracer
	log    logger.Logger
}

// New 创建客户端
func New(opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
			IdleConnTimeout:     cfg.IdleTimeout,
		}
	}
	if cfg.Tracing {
		transport = injectTrace(transport)
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		tracer: otel.Tracer(tracerName),
		log:    cfg.Logger,
	}
}

// Send 发送请求，按 Retry 配置重试
// 重试用尽时：最后一次是网络错误返回 ErrMaxRetry，否则返回最后一次响应
func (c *Client) Send(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = c.once(ctx, method, url, body, header)
		if attempt >= c.cfg.Retry.Attempts {
			break
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if !retryable(status, err) {
			return resp, err
		}

		timer := time.NewTimer(c.cfg.Retry.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrTimeout.WithError(ctx.Err())
		case <-timer.C:
		}
		c.log.DebugContext(ctx, "http request retry",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
		)
	}

	if err != nil && c.cfg.Retry.Attempts > 0 {
		return nil, ErrMaxRetry.WithError(err)
	}
	return resp, err
}

// once 单次请求，每次重新构造 http.Request 以便重放 body
func (c *Client) once(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, ErrInvalidRequest.WithError(err)
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}
	for _, fn := range c.cfg.Before {
		fn(req)
	}

	var span trace.Span
	if c.cfg.Tracing {
		var spanCtx context.Context
		spanCtx, span = c.tracer.Start(ctx, "HTTP "+method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.url", req.URL.String()),
			),
		)
		defer span.End()
		req = req.WithContext(spanCtx)
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(req, span, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, c.fail(req, span, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}
	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
	}
	c.log.DebugContext(req.Context(), "http request",
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
	)
	return resp, nil
}

func (c *Client) fail(req *http.Request, span trace.Span, err error) error {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.log.WarnContext(req.Context(), "http request failed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Error(err),
	)
	return ErrRequestFailed.WithError(err)
}

// CloseIdleConnections 释放空闲连接
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// injectTrace 把当前 span 写入请求头
func injectTrace(base http.RoundTripper) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
		return base.RoundTrip(req)
	})
}
