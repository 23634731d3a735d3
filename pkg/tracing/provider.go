package tracing

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu      sync.Mutex
	current *sdktrace.TracerProvider
)

// NewTracerProvider 创建并注册全局 TracerProvider
//
// 未启用时仍然生成 span 但不导出，日志与响应中的 trace_id 照常可用
func NewTracerProvider(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		cfg.Exporter = ExporterNoop
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, ErrExporter.WithError(err)
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, ErrResource.WithError(err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.BatchSize),
			sdktrace.WithMaxQueueSize(cfg.QueueSize),
		),
	}
	// 设置了 OTEL_TRACES_SAMPLER 时交给 SDK 从环境变量构造
	if os.Getenv("OTEL_TRACES_SAMPLER") == "" {
		opts = append(opts, sdktrace.WithSampler(sampler(cfg.Sampler, cfg.Ratio)))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	mu.Lock()
	prev := current
	current = tp
	mu.Unlock()
	if prev != nil {
		_ = prev.Shutdown(ctx)
	}
	return tp, nil
}

func sampler(kind string, ratio float64) sdktrace.Sampler {
	switch kind {
	case SampleAlways:
		return sdktrace.AlwaysSample()
	case SampleNever:
		return sdktrace.NeverSample()
	case SampleRatio:
		return sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Shutdown 导出剩余 span 后关闭，可重复调用
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := current
	current = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// TraceID 返回 ctx 中 span 的 trace id，没有时返回空串
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
