package logger

import (
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/scatter/pkg/config"
)

// Format 输出格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// Hook 每条日志写入前调用，返回错误时该条被丢弃
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// Config 日志配置，零值输出 info 级别 JSON 到标准输出
type Config struct {
	Level  Level
	Format Format

	// 三类输出可同时开启，全部为空时退回控制台
	Console bool
	File    string
	Rotate  *RotateConfig

	Sampling         *SamplingConfig
	EnableCaller     bool
	EnableStacktrace bool // error 及以上附带堆栈

	EncoderConfig *zapcore.EncoderConfig
	Hooks         []Hook
}

// RotateConfig lumberjack 轮转参数，MaxSize 单位 MB，MaxAge 单位天
type RotateConfig struct {
	Filename   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Compress   bool
}

// SamplingConfig 每秒同一消息前 Initial 条全部记录，此后每 Thereafter 条记录一条
type SamplingConfig struct {
	Initial    int
	Thereafter int
}

func orDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func (c *Config) setDefaults() {
	if c.Format != ConsoleFormat {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if r := c.Rotate; r != nil {
		orDefault(&r.MaxSize, 100)
		orDefault(&r.MaxAge, 30)
		orDefault(&r.MaxBackups, 10)
	}
	if s := c.Sampling; s != nil {
		orDefault(&s.Initial, 100)
		orDefault(&s.Thereafter, 100)
	}
}

// FromSettings 由 log 配置段生成，未知级别按 info 处理
func FromSettings(s config.LogSettings) *Config {
	level, _ := ParseLevel(s.Level)
	c := &Config{
		Level:            level,
		Format:           Format(s.Format),
		EnableCaller:     s.Caller,
		EnableStacktrace: true,
	}
	switch {
	case s.File == "":
		c.Console = true
	case s.Rotate:
		c.Rotate = &RotateConfig{
			Filename:   s.File,
			MaxSize:    s.MaxSize,
			MaxAge:     s.MaxAge,
			MaxBackups: s.MaxBackups,
			Compress:   s.Compress,
		}
	default:
		c.File = s.File
	}
	if s.Sampling {
		c.Sampling = &SamplingConfig{}
	}
	return c
}
