package orm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "scatter.orm"

// spanPlugin 为每条语句创建一个 client span
type spanPlugin struct{}

func (spanPlugin) Name() string { return "scatter:tracing" }

func (spanPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("scatter:before_create", startSpan("db.create")),
		cb.Create().After("gorm:create").Register("scatter:after_create", endSpan),
		cb.Query().Before("gorm:query").Register("scatter:before_query", startSpan("db.query")),
		cb.Query().After("gorm:query").Register("scatter:after_query", endSpan),
		cb.Update().Before("gorm:update").Register("scatter:before_update", startSpan("db.update")),
		cb.Update().After("gorm:update").Register("scatter:after_update", endSpan),
		cb.Delete().Before("gorm:delete").Register("scatter:before_delete", startSpan("db.delete")),
		cb.Delete().After("gorm:delete").Register("scatter:after_delete", endSpan),
		cb.Raw().Before("gorm:raw").Register("scatter:before_raw", startSpan("db.raw")),
		cb.Raw().After("gorm:raw").Register("scatter:after_raw", endSpan),
	)
}

func startSpan(name string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		// Provider 可能晚于数据库创建，tracer 每次现取
		db.Statement.Context, _ = otel.Tracer(tracerName).Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("db.system", db.Dialector.Name())),
		)
	}
}

func endSpan(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attrs...)

	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
