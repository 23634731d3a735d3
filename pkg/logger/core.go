package logger

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func defaultEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.FunctionKey = zapcore.OmitKey
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	return ec
}

func newEncoder(config *Config) zapcore.Encoder {
	ec := defaultEncoderConfig()
	if config.EncoderConfig != nil {
		ec = *config.EncoderConfig
	}
	if config.Format == ConsoleFormat {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// openSink 合并控制台、普通文件与轮转文件三类输出
func openSink(config *Config) (zapcore.WriteSyncer, error) {
	var sinks []zapcore.WriteSyncer
	if config.Console {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	if config.File != "" {
		ws, _, err := zap.Open(config.File)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", config.File, err)
		}
		sinks = append(sinks, ws)
	}
	if r := config.Rotate; r != nil {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   r.Filename,
			MaxSize:    r.MaxSize,
			MaxAge:     r.MaxAge,
			MaxBackups: r.MaxBackups,
			LocalTime:  true,
			Compress:   r.Compress,
		}))
	}

	switch len(sinks) {
	case 0:
		return nil, errNoOutput
	case 1:
		return sinks[0], nil
	}
	return zapcore.NewMultiWriteSyncer(sinks...), nil
}

// contextFields 把 ctx 中的链路与连接标识放在 fields 之前
func contextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	out := make([]zap.Field, 0, len(fields)+4)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}
	if uid, ok := UserIDFromContext(ctx); ok {
		out = append(out, zap.Uint64("user_id", uid))
	}
	if cid, ok := ConnIDFromContext(ctx); ok {
		out = append(out, zap.Uint64("conn_id", cid))
	}
	return append(out, fields...)
}

// hookCore 写入前依次调用 Hook，任一 Hook 出错则放弃该条
type hookCore struct {
	zapcore.Core
	hooks []Hook
}

func (c *hookCore) With(fields []zapcore.Field) zapcore.Core {
	return &hookCore{Core: c.Core.With(fields), hooks: c.hooks}
}

func (c *hookCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *hookCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	for _, h := range c.hooks {
		if err := h.OnWrite(entry, fields); err != nil {
			return err
		}
	}
	return c.Core.Write(entry, fields)
}
