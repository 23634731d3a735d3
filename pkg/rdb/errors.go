package rdb

import "github.com/tokmz/scatter/pkg/errors"

// 预定义错误
var (
	ErrConnection    = errors.New(7101, 500, "redis connection failed", nil)
	ErrInvalidConfig = errors.New(7102, 500, "redis invalid config", nil)
)
