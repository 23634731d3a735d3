package request

import "github.com/tokmz/scatter/pkg/errors"

// 4xxx 出站 HTTP 请求
var (
	ErrRequestFailed  = errors.New(4001, 502, "HTTP 请求失败", nil)
	ErrTimeout        = errors.New(4002, 504, "HTTP 请求超时", nil)
	ErrMaxRetry       = errors.New(4003, 502, "HTTP 重试次数已用尽", nil)
	ErrInvalidRequest = errors.New(4004, 400, "HTTP 请求参数无效", nil)
)
