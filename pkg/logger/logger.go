package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口
//
// *Context 方法从 ctx 中提取 trace_id、span_id、user_id、conn_id
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)

	DebugContext(ctx context.Context, msg string, fields ...zap.Field)
	InfoContext(ctx context.Context, msg string, fields ...zap.Field)
	WarnContext(ctx context.Context, msg string, fields ...zap.Field)
	ErrorContext(ctx context.Context, msg string, fields ...zap.Field)

	With(fields ...zap.Field) Logger
	WithContext(ctx context.Context) Logger
	Sync() error

	// SetLevel 运行时调整级别，With 派生的子 Logger 同步生效
	SetLevel(level Level)
	Level() Level
}

var errNoOutput = errors.New("logger: no output configured")

// New 按配置创建 Logger，config 为 nil 时输出 JSON 到标准输出
func New(config *Config) (Logger, error) {
	if config == nil {
		config = &Config{}
	}
	config.setDefaults()

	sink, err := openSink(config)
	if err != nil {
		return nil, err
	}

	atom := zap.NewAtomicLevelAt(config.Level.zap())
	var core zapcore.Core = zapcore.NewCore(newEncoder(config), sink, atom)
	if s := config.Sampling; s != nil {
		core = zapcore.NewSamplerWithOptions(core, time.Second, s.Initial, s.Thereafter)
	}
	if len(config.Hooks) > 0 {
		core = &hookCore{Core: core, hooks: config.Hooks}
	}

	opts := make([]zap.Option, 0, 3)
	if config.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return &zapLogger{base: zap.New(core, opts...), atom: atom}, nil
}

// Nop 丢弃全部输出
func Nop() Logger {
	return &zapLogger{base: zap.NewNop(), atom: zap.NewAtomicLevel()}
}

type zapLogger struct {
	base *zap.Logger
	atom zap.AtomicLevel
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.base.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.base.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.base.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.base.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...zap.Field) { l.base.Fatal(msg, fields...) }

func (l *zapLogger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logContext(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *zapLogger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logContext(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *zapLogger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logContext(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *zapLogger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logContext(ctx, zapcore.ErrorLevel, msg, fields)
}

// logContext 级别未开启时不提取 ctx 字段
func (l *zapLogger) logContext(ctx context.Context, lvl zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.base.Check(lvl, msg); ce != nil {
		ce.Write(contextFields(ctx, fields)...)
	}
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{base: l.base.With(fields...), atom: l.atom}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	return l.With(contextFields(ctx, nil)...)
}

func (l *zapLogger) Sync() error { return l.base.Sync() }

func (l *zapLogger) SetLevel(level Level) { l.atom.SetLevel(level.zap()) }

func (l *zapLogger) Level() Level { return Level(l.atom.Level()) }
