package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/scatter/pkg/config"
	"github.com/tokmz/scatter/pkg/logger"
)

// Config HTTP 服务配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	// Addr 监听地址，默认 ":8080"
	Addr string

	// Endpoint WebSocket 路径，默认 "/chat"
	Endpoint string

	// ReadHeaderTimeout 读取请求头超时
	// 不设置 Read/WriteTimeout，升级后的长连接由 ws 层自行控制期限
	ReadHeaderTimeout time.Duration

	// IdleTimeout keep-alive 空闲超时
	IdleTimeout time.Duration

	// MaxHeaderBytes 最大请求头字节数
	MaxHeaderBytes int

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string

	// CORSOrigins 允许跨域读取统计接口的来源，为空时不输出 CORS 头
	CORSOrigins []string

	// UpgradeRate 单个 IP 每秒握手次数，0 不限制
	UpgradeRate  float64
	UpgradeBurst int

	// CertFile/KeyFile 均非空时启用 TLS
	CertFile string
	KeyFile  string

	Logger logger.Logger
}

// Option 配置选项函数
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Mode:              gin.ReleaseMode,
		Addr:              ":8080",
		Endpoint:          "/chat",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) { c.Mode = mode }
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithEndpoint 设置 WebSocket 路径
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithTLS 设置证书
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.CertFile = certFile
		c.KeyFile = keyFile
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) { c.TrustedProxies = proxies }
}

// WithCORS 设置允许跨域的来源
func WithCORS(origins ...string) Option {
	return func(c *Config) { c.CORSOrigins = origins }
}

// WithUpgradeLimit 设置单 IP 握手限流
func WithUpgradeLimit(rate float64, burst int) Option {
	return func(c *Config) {
		c.UpgradeRate = rate
		c.UpgradeBurst = burst
	}
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// FromSettings 由配置文件生成选项
func FromSettings(s config.ServerSettings) Option {
	return func(c *Config) {
		if s.Address != "" {
			c.Addr = s.Address
		}
		if s.Endpoint != "" {
			c.Endpoint = s.Endpoint
		}
		c.CertFile = s.TLS.CertFile
		c.KeyFile = s.TLS.KeyFile
		c.CORSOrigins = s.AllowedOrigins
		c.UpgradeRate = s.UpgradeRate
		c.UpgradeBurst = s.UpgradeBurst
	}
}

// TLSEnabled 是否启用 TLS
func (c *Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
