package auth

import "github.com/tokmz/scatter/pkg/errors"

var (
	ErrUnknownType     = errors.New(8001, 500, "unknown auth type", nil)
	ErrInvalidSettings = errors.New(8002, 500, "invalid auth settings", nil)
	ErrMissingToken    = errors.New(8003, 401, "missing bearer token", nil)
	ErrInvalidToken    = errors.New(8004, 401, "invalid token", nil)
)
