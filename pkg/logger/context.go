package logger

import "context"

type contextKey string

const (
	userIDKey contextKey = "user_id"
	connIDKey contextKey = "conn_id"
)

// WithUserID 在 Context 中记录用户 ID，供 *Context 日志方法提取
func WithUserID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithConnID 在 Context 中记录连接 ID
func WithConnID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// UserIDFromContext 读取用户 ID
func UserIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userIDKey).(uint64)
	return id, ok
}

// ConnIDFromContext 读取连接 ID
func ConnIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connIDKey).(uint64)
	return id, ok
}
