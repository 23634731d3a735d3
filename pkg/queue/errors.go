package queue

import "github.com/tokmz/scatter/pkg/errors"

// 预定义错误
var (
	ErrEncode = errors.New(7001, 500, "encode undelivered message failed", nil)
	ErrDecode = errors.New(7002, 500, "decode undelivered message failed", nil)
	ErrStore  = errors.New(7003, 500, "undelivered queue storage failed", nil)
)
