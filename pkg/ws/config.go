package ws

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/scatter/pkg/logger"
)

// Config WebSocket 传输配置
type Config struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration // 单帧写超时
	CloseGrace       time.Duration // 发出关闭帧后等待对端回应

	FragmentSize int // 入站消息按此大小分片交给路由层
	Outbox       int // 单连接待写消息上限
	Workers      int // 写协程数
	WorkerQueue  int

	// AllowedOrigins 为空时只放行无 Origin 或同源的请求，含 "*" 时全部放行
	AllowedOrigins []string

	Logger  logger.Logger
	Metrics Metrics
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseGrace:       time.Second,
		FragmentSize:     64 << 10,
		Outbox:           256,
		Workers:          runtime.NumCPU(),
		WorkerQueue:      4096,
	}
}

// Validate 所有尺寸与超时必须为正
func (c *Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"ReadBufferSize", c.ReadBufferSize > 0},
		{"WriteBufferSize", c.WriteBufferSize > 0},
		{"HandshakeTimeout", c.HandshakeTimeout > 0},
		{"WriteTimeout", c.WriteTimeout > 0},
		{"FragmentSize", c.FragmentSize > 0},
		{"Outbox", c.Outbox > 0},
		{"Workers", c.Workers > 0},
		{"WorkerQueue", c.WorkerQueue > 0},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%s must be positive", chk.name)
		}
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithWriteTimeout 单帧写超时
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = timeout }
}

// WithFragmentSize 读取分片大小
func WithFragmentSize(size int) Option {
	return func(c *Config) { c.FragmentSize = size }
}

// WithOutbox 单连接待写上限
func WithOutbox(size int) Option {
	return func(c *Config) { c.Outbox = size }
}

// WithWorkers 写协程数与任务队列长度，workers 为 0 时取 CPU 核数
func WithWorkers(workers, queue int) Option {
	return func(c *Config) {
		if workers == 0 {
			workers = runtime.NumCPU()
		}
		c.Workers, c.WorkerQueue = workers, queue
	}
}

// WithCheckOriginWhitelist Origin 白名单，白名单模式下拒绝不带 Origin 的请求
func WithCheckOriginWhitelist(origins []string) Option {
	return func(c *Config) { c.AllowedOrigins = origins }
}

// WithLogger 日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics 替换内置 Counters
func WithMetrics(m Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

func newUpgrader(c *Config) websocket.Upgrader {
	return websocket.Upgrader{
		HandshakeTimeout: c.HandshakeTimeout,
		ReadBufferSize:   c.ReadBufferSize,
		WriteBufferSize:  c.WriteBufferSize,
		CheckOrigin:      originChecker(c.AllowedOrigins),
	}
}

// originChecker 聊天客户端多为非浏览器程序，默认放行不带 Origin 的请求
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		}
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}
