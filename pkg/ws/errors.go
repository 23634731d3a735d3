package ws

import "github.com/tokmz/scatter/pkg/errors"

// 错误定义
var (
	// 连接相关错误
	ErrConnectionClosed = errors.New(5001, 410, "ws: connection closed", nil)
	ErrOutboxFull       = errors.New(5002, 503, "ws: outbox full", nil)
	ErrShuttingDown     = errors.New(5003, 503, "ws: server shutting down", nil)

	// 写协程池相关错误
	ErrPoolFull   = errors.New(5101, 503, "ws: write pool full", nil)
	ErrPoolClosed = errors.New(5102, 503, "ws: write pool closed", nil)

	// 配置相关错误
	ErrInvalidConfig = errors.New(5201, 500, "ws: invalid config", nil)
)
