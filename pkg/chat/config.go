package chat

import (
	"fmt"
	"time"

	"github.com/tokmz/scatter/pkg/logger"
)

// Config 消息路由配置
type Config struct {
	MaxMessageSize         int64 // 单条消息（含重组后的分片消息）最大字节数
	EnableSendBack         bool  // 先把消息回送给发送人
	EnableUndeliveredQueue bool  // 离线消息入队并在重连时补发
	EnableDeliveryStatus   bool  // 写入成功后给发送人回执

	Watchdog WatchdogConfig

	Queue     UndeliveredQueue // 为空时使用 MemoryQueue
	Auth      Authenticator    // 为空时不鉴权
	Listeners []Listener
	Logger    logger.Logger
	Clock     func() time.Time
}

// WatchdogConfig 心跳检测配置
type WatchdogConfig struct {
	Enabled   bool
	Interval  time.Duration // 探测周期
	Lifetime  time.Duration // 闲置超过该时长直接关闭
	PongGrace time.Duration // ping 之后等待 pong 的时长
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxMessageSize:         10 * 1024 * 1024,
		EnableUndeliveredQueue: true,
		Watchdog: WatchdogConfig{
			Enabled:   true,
			Interval:  time.Minute,
			Lifetime:  10 * time.Minute,
			PongGrace: 2 * time.Second,
		},
		Clock: time.Now,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MaxMessageSize must be positive, got %d", c.MaxMessageSize)
	}
	if c.Watchdog.Enabled {
		if c.Watchdog.Interval <= 0 {
			return fmt.Errorf("Watchdog.Interval must be positive, got %v", c.Watchdog.Interval)
		}
		if c.Watchdog.Lifetime <= 0 {
			return fmt.Errorf("Watchdog.Lifetime must be positive, got %v", c.Watchdog.Lifetime)
		}
		// pong 需要时间返回，等待期为 0 会把每个被探测的连接都断开
		if c.Watchdog.PongGrace <= 0 || c.Watchdog.PongGrace >= c.Watchdog.Interval {
			return fmt.Errorf("Watchdog.PongGrace (%v) must be in (0, Interval)", c.Watchdog.PongGrace)
		}
	}
	return nil
}

// Option 配置选项函数
type Option func(*Config)

// WithMaxMessageSize 设置消息大小上限
func WithMaxMessageSize(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendBack 开启回送
func WithSendBack(enable bool) Option {
	return func(c *Config) {
		c.EnableSendBack = enable
	}
}

// WithUndeliveredQueue 开启离线队列并指定实现，q 为空时使用 MemoryQueue
func WithUndeliveredQueue(enable bool, q UndeliveredQueue) Option {
	return func(c *Config) {
		c.EnableUndeliveredQueue = enable
		c.Queue = q
	}
}

// WithDeliveryStatus 开启送达回执
func WithDeliveryStatus(enable bool) Option {
	return func(c *Config) {
		c.EnableDeliveryStatus = enable
	}
}

// WithWatchdog 设置心跳检测
func WithWatchdog(w WatchdogConfig) Option {
	return func(c *Config) {
		c.Watchdog = w
	}
}

// WithAuthenticator 设置鉴权
func WithAuthenticator(a Authenticator) Option {
	return func(c *Config) {
		c.Auth = a
	}
}

// WithListener 添加消息监听器
func WithListener(l Listener) Option {
	return func(c *Config) {
		c.Listeners = append(c.Listeners, l)
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}
