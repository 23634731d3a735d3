package target

import "github.com/tokmz/scatter/pkg/errors"

// 预定义错误
var (
	ErrUnknownType     = errors.New(6001, 500, "unknown target type", nil)
	ErrInvalidSettings = errors.New(6002, 500, "invalid target settings", nil)
	ErrSend            = errors.New(6003, 502, "send to target failed", nil)
	ErrEncode          = errors.New(6004, 500, "encode target event failed", nil)
	ErrDispatcherFull  = errors.New(6005, 503, "target dispatcher is full", nil)
)
