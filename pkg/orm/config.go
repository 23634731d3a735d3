package orm

import (
	"time"

	"github.com/tokmz/scatter/pkg/config"
	"github.com/tokmz/scatter/pkg/logger"
)

// DBType 数据库驱动名，与 database.driver 配置项取值一致
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库连接配置
type Config struct {
	Type     DBType
	DSN      string
	Replicas []string // 只读从库，随机选择

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	Logger        logger.Logger // nil 时不记录 SQL
	SlowThreshold time.Duration
	Tracing       bool
}

// DefaultConfig 默认使用 SQLite，DSN 需调用方填写
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// FromSettings 读取 database 配置段，未设置的项沿用默认值
func FromSettings(s config.DatabaseSettings) *Config {
	c := DefaultConfig()
	c.Type, c.DSN, c.Replicas = DBType(s.Driver), s.DSN, s.Replicas
	c.MaxIdleConns = positive(s.MaxIdleConns, c.MaxIdleConns)
	c.MaxOpenConns = positive(s.MaxOpenConns, c.MaxOpenConns)
	c.ConnMaxLifetime = positive(s.ConnMaxLifetime, c.ConnMaxLifetime)
	c.SlowThreshold = positive(s.SlowThreshold, c.SlowThreshold)
	return c
}

func positive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
