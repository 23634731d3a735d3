package tracing

import (
	"cmp"
	"time"

	"github.com/tokmz/scatter/pkg/config"
)

// 导出器
const (
	ExporterOTLP     = "otlp"      // OTLP over HTTP
	ExporterOTLPGRPC = "otlp_grpc" // OTLP over gRPC
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// 采样策略
const (
	SampleAlways      = "always"
	SampleNever       = "never"
	SampleRatio       = "ratio"
	SampleParentBased = "parent_based"
)

// Config 链路追踪配置
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	Exporter string
	Endpoint string // 为空时读取 OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure bool
	Headers  map[string]string

	Sampler string
	Ratio   float64

	BatchTimeout time.Duration
	BatchSize    int
	QueueSize    int
}

// DefaultConfig 默认不导出，按父 span 决定是否采样
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "scatter",
		Environment:  "development",
		Exporter:     ExporterNoop,
		Sampler:      SampleParentBased,
		Ratio:        1,
		BatchTimeout: 5 * time.Second,
		BatchSize:    512,
		QueueSize:    2048,
	}
}

// FromSettings 读取 tracing 配置段
func FromSettings(s config.TracingSettings) *Config {
	c := DefaultConfig()
	c.Enabled = s.Enabled
	c.Endpoint = s.Endpoint
	c.Insecure = s.Insecure
	c.Headers = s.Headers
	c.Ratio = s.SamplingRate
	c.ServiceName = cmp.Or(s.ServiceName, c.ServiceName)
	c.Environment = cmp.Or(s.Environment, c.Environment)
	c.Exporter = cmp.Or(s.Exporter, c.Exporter)
	c.Sampler = cmp.Or(s.SamplingType, c.Sampler)
	return c
}

// Validate 校验服务名、采样率与导出器
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return ErrInvalidConfig.WithMessage("service name is required")
	case c.Ratio < 0 || c.Ratio > 1:
		return ErrInvalidConfig.WithMessage("sampling rate must be within [0, 1]")
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
		return nil
	}
	return ErrInvalidConfig.WithMessage("unknown exporter: " + c.Exporter)
}
