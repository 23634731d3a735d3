package server

import "github.com/tokmz/scatter/pkg/errors"

// 预定义错误
var (
	ErrInvalidUserID = errors.ErrBadRequest.WithMessage("invalid user id")
	ErrUnknownUser   = errors.ErrNotFound.WithMessage("no statistics for user")
	ErrRateLimited   = errors.ErrTooManyRequests.WithMessage("too many upgrade requests")
)
