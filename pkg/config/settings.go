package config

import (
	"fmt"
	"strings"
	"time"
)

// EnvPrefix 环境变量前缀，例如 SCATTER_SERVER_ADDRESS
const EnvPrefix = "SCATTER"

// Settings scatter 全部配置项
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Chat     ChatSettings     `mapstructure:"chat"`
	Auth     AuthSettings     `mapstructure:"auth"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Database DatabaseSettings `mapstructure:"database"`
	Targets  []TargetSettings `mapstructure:"targets"`
	Log      LogSettings      `mapstructure:"log"`
	Tracing  TracingSettings  `mapstructure:"tracing"`
}

// ServerSettings 监听与传输层配置
type ServerSettings struct {
	Address        string           `mapstructure:"address"`
	Endpoint       string           `mapstructure:"endpoint"`     // WebSocket 路径
	Workers        int              `mapstructure:"workers"`      // 写协程数，0 表示 CPU 核数
	WorkerQueue    int              `mapstructure:"workerQueue"`  // 写任务队列长度
	Outbox         int              `mapstructure:"outbox"`       // 单连接待写消息上限
	WriteTimeout   time.Duration    `mapstructure:"writeTimeout"` // 单帧写超时
	FragmentSize   int              `mapstructure:"fragmentSize"` // 读取分片大小
	AllowedOrigins []string         `mapstructure:"allowedOrigins"`
	TLS            TLSSettings      `mapstructure:"tls"`
	Watchdog       WatchdogSettings `mapstructure:"watchdog"`

	// 单个 IP 的握手限流，UpgradeRate 为 0 不限制
	UpgradeRate  float64 `mapstructure:"upgradeRate"`
	UpgradeBurst int     `mapstructure:"upgradeBurst"`
}

// TLSSettings 证书配置，两者都为空时使用明文
type TLSSettings struct {
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// Enabled 是否启用 TLS
func (t TLSSettings) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// WatchdogSettings 心跳与闲置检测
type WatchdogSettings struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Lifetime  time.Duration `mapstructure:"lifetime"`
	PongGrace time.Duration `mapstructure:"pongGrace"`
}

// ChatSettings 消息路由配置
type ChatSettings struct {
	MaxMessageSize         int64               `mapstructure:"maxMessageSize"`
	EnableSendBack         bool                `mapstructure:"enableSendBack"`
	EnableUndeliveredQueue bool                `mapstructure:"enableUndeliveredQueue"`
	EnableDeliveryStatus   bool                `mapstructure:"enableDeliveryStatus"`
	Undelivered            UndeliveredSettings `mapstructure:"undelivered"`
}

// UndeliveredSettings 离线消息队列
type UndeliveredSettings struct {
	Driver     string        `mapstructure:"driver"` // memory | redis | database
	MaxPerUser int           `mapstructure:"maxPerUser"`
	KeyPrefix  string        `mapstructure:"keyPrefix"` // redis 键前缀
	TTL        time.Duration `mapstructure:"ttl"`       // 过期时间，0 不过期
}

// AuthSettings 鉴权配置
// header: Name 为请求头名，Value 为期望值
// bearer: Value 为期望 token
// cookie: Name 为 cookie 名，Value 为期望值
// jwt: Secret 为 HMAC 密钥，MatchID 要求 sub 与 ?id= 一致
type AuthSettings struct {
	Type    string `mapstructure:"type"`
	Name    string `mapstructure:"name"`
	Value   string `mapstructure:"value"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
	MatchID bool   `mapstructure:"matchId"`
}

// RedisSettings Redis 客户端配置
type RedisSettings struct {
	Mode         string        `mapstructure:"mode"` // standalone | cluster | sentinel
	Addrs        []string      `mapstructure:"addrs"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MasterName   string        `mapstructure:"masterName"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// DatabaseSettings 数据库配置
type DatabaseSettings struct {
	Driver          string        `mapstructure:"driver"` // mysql | postgres | sqlite | sqlserver
	DSN             string        `mapstructure:"dsn"`
	Replicas        []string      `mapstructure:"replicas"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	SlowThreshold   time.Duration `mapstructure:"slowThreshold"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

// TargetSettings 外部投递目标
type TargetSettings struct {
	Type string `mapstructure:"type"` // redis | postback | kafka | amqp

	// redis
	Mode  string         `mapstructure:"mode"` // queue | channel
	Name  string         `mapstructure:"name"` // 队列或频道名
	Redis *RedisSettings `mapstructure:"redis"`

	// postback
	URL     string        `mapstructure:"url"`
	Method  string        `mapstructure:"method"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	Auth    AuthSettings  `mapstructure:"auth"`

	// kafka
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// amqp
	AmqpURL    string `mapstructure:"amqpUrl"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routingKey"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	Rotate     bool   `mapstructure:"rotate"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxAge     int    `mapstructure:"maxAge"`
	MaxBackups int    `mapstructure:"maxBackups"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
	Sampling   bool   `mapstructure:"sampling"` // 每秒同类日志超过 100 条后按 1/100 采样
}

// TracingSettings 链路追踪配置
type TracingSettings struct {
	Enabled      bool              `mapstructure:"enabled"`
	ServiceName  string            `mapstructure:"serviceName"`
	Environment  string            `mapstructure:"environment"`
	Exporter     string            `mapstructure:"exporter"` // otlp | otlp_grpc | stdout | noop
	Endpoint     string            `mapstructure:"endpoint"`
	Insecure     bool              `mapstructure:"insecure"`
	Headers      map[string]string `mapstructure:"headers"`
	SamplingType string            `mapstructure:"samplingType"`
	SamplingRate float64           `mapstructure:"samplingRate"`
}

// Defaults 内置默认值，键与配置文件一致
func Defaults() map[string]any {
	return map[string]any{
		"server.address":            ":8080",
		"server.endpoint":           "/chat",
		"server.workers":            0,
		"server.workerQueue":        4096,
		"server.outbox":             256,
		"server.writeTimeout":       10 * time.Second,
		"server.fragmentSize":       64 * 1024,
		"server.upgradeRate":        0.0,
		"server.upgradeBurst":       0,
		"server.watchdog.enabled":   true,
		"server.watchdog.interval":  time.Minute,
		"server.watchdog.lifetime":  10 * time.Minute,
		"server.watchdog.pongGrace": 2 * time.Second,

		"chat.maxMessageSize":            10 * 1024 * 1024,
		"chat.enableSendBack":            false,
		"chat.enableUndeliveredQueue":    true,
		"chat.enableDeliveryStatus":      false,
		"chat.undelivered.driver":        "memory",
		"chat.undelivered.maxPerUser":    0,
		"chat.undelivered.keyPrefix":     "scatter:undelivered:",
		"chat.undelivered.ttl":           time.Duration(0),

		"auth.type": "noauth",

		"redis.mode":  "standalone",
		"redis.addrs": []string{"127.0.0.1:6379"},

		"database.driver":       "sqlite",
		"database.dsn":          "scatter.db",
		"database.maxIdleConns": 10,
		"database.maxOpenConns": 100,
		"database.autoMigrate":  true,

		"log.level":  "info",
		"log.format": "json",

		"tracing.enabled":      false,
		"tracing.serviceName":  "scatter",
		"tracing.exporter":     "noop",
		"tracing.samplingType": "parent_based",
		"tracing.samplingRate": 1.0,
	}
}

// Validate 检查配置项取值
func (s *Settings) Validate() error {
	if s.Chat.MaxMessageSize <= 0 {
		return ErrInvalidSettings.WithMessage("chat.maxMessageSize 必须大于 0")
	}
	if s.Server.FragmentSize <= 0 {
		return ErrInvalidSettings.WithMessage("server.fragmentSize 必须大于 0")
	}
	if !strings.HasPrefix(s.Server.Endpoint, "/") {
		return ErrInvalidSettings.WithMessage("server.endpoint 必须以 / 开头")
	}
	switch s.Chat.Undelivered.Driver {
	case "memory", "redis", "database":
	default:
		return ErrInvalidSettings.WithMessage("未知的 chat.undelivered.driver: " + s.Chat.Undelivered.Driver)
	}
	if s.Server.Watchdog.Enabled && (s.Server.Watchdog.Interval <= 0 || s.Server.Watchdog.Lifetime <= 0) {
		return ErrInvalidSettings.WithMessage("server.watchdog.interval 与 lifetime 必须大于 0")
	}
	if s.Server.Watchdog.Enabled && (s.Server.Watchdog.PongGrace <= 0 || s.Server.Watchdog.PongGrace >= s.Server.Watchdog.Interval) {
		return ErrInvalidSettings.WithMessage("server.watchdog.pongGrace 必须大于 0 且小于 interval")
	}
	for i, t := range s.Targets {
		switch t.Type {
		case "redis", "postback", "kafka", "amqp":
		default:
			return ErrInvalidSettings.WithMessage(fmt.Sprintf("targets[%d]: 未知类型 %q", i, t.Type))
		}
	}
	return nil
}
