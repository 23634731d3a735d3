package request

import (
	"net/http"
	"time"

	"github.com/tokmz/scatter/pkg/logger"
)

// Config 客户端配置
type Config struct {
	Timeout      time.Duration // 单次请求超时，默认 30s
	MaxIdleConns int           // 每个 Host 的空闲连接上限，默认 16
	IdleTimeout  time.Duration // 空闲连接超时，默认 90s
	Retry        Retry         // Attempts 为 0 时不重试

	// Before 每次发送前依次调用，重试时也会重新调用
	Before []func(*http.Request)

	Logger    logger.Logger
	Tracing   bool
	Transport http.RoundTripper // 非空时忽略连接池配置
}

func defaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		MaxIdleConns: 16,
		IdleTimeout:  90 * time.Second,
		Retry: Retry{
			Initial: 100 * time.Millisecond,
			Max:     5 * time.Second,
		},
	}
}

// Option 配置选项函数
type Option func(*Config)

// WithTimeout 设置单次请求超时，0 保持默认
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithRetries 失败后最多重试 n 次
func WithRetries(n int) Option {
	return func(c *Config) { c.Retry.Attempts = max(n, 0) }
}

// WithBackoff 设置退避区间
func WithBackoff(initial, maximum time.Duration) Option {
	return func(c *Config) {
		c.Retry.Initial = initial
		c.Retry.Max = maximum
	}
}

// WithBefore 添加发送前回调，例如写入鉴权信息
func WithBefore(fn func(*http.Request)) Option {
	return func(c *Config) { c.Before = append(c.Before, fn) }
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTracing 开启客户端 span 与 trace 头注入
func WithTracing(enable bool) Option {
	return func(c *Config) { c.Tracing = enable }
}

// WithTransport 设置自定义 Transport
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}
