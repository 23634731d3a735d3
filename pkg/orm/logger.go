package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tokmz/scatter/pkg/logger"
)

// sqlLogger 实现 gormlogger.Interface，默认只记录错误与慢查询
type sqlLogger struct {
	log  logger.Logger
	mode gormlogger.LogLevel
	slow time.Duration
}

func newLogger(log logger.Logger, slow time.Duration) gormlogger.Interface {
	return &sqlLogger{log: log, mode: gormlogger.Warn, slow: slow}
}

func (l *sqlLogger) LogMode(mode gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.mode = mode
	return &c
}

func (l *sqlLogger) Info(ctx context.Context, format string, args ...any) {
	if l.mode >= gormlogger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(format, args...))
	}
}

func (l *sqlLogger) Warn(ctx context.Context, format string, args ...any) {
	if l.mode >= gormlogger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(format, args...))
	}
}

func (l *sqlLogger) Error(ctx context.Context, format string, args ...any) {
	if l.mode >= gormlogger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(format, args...))
	}
}

func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.mode <= gormlogger.Silent {
		return
	}
	cost := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && cost > l.slow

	var emit func(context.Context, string, ...zap.Field)
	msg := "sql"
	switch {
	case failed && l.mode >= gormlogger.Error:
		emit, msg = l.log.ErrorContext, "sql failed"
	case slow && l.mode >= gormlogger.Warn:
		emit, msg = l.log.WarnContext, "slow sql"
	case l.mode >= gormlogger.Info:
		emit = l.log.DebugContext
	default:
		return
	}

	stmt, rows := fc()
	fields := []zap.Field{zap.String("sql", stmt), zap.Int64("rows", rows), zap.Duration("cost", cost)}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	emit(ctx, msg, fields...)
}
