package tracing

import "github.com/tokmz/scatter/pkg/errors"

// 预定义错误
var (
	ErrInvalidConfig = errors.New(9001, 500, "invalid tracing config", nil)
	ErrExporter      = errors.New(9002, 500, "create span exporter failed", nil)
	ErrResource      = errors.New(9003, 500, "create tracing resource failed", nil)
)
