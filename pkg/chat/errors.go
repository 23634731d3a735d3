package chat

import "github.com/tokmz/scatter/pkg/errors"

var (
	// ErrConnectionNotFound 用户没有在线连接
	ErrConnectionNotFound = errors.New(2001, 404, "用户没有在线连接", nil)
	// ErrInvalidPayload 消息格式错误
	ErrInvalidPayload = errors.New(2002, 400, "Invalid payload", nil)
	// ErrUnauthorized 鉴权失败
	ErrUnauthorized = errors.New(2003, 401, "Unauthorized", nil)
	// ErrInvalidQuery 连接参数错误
	ErrInvalidQuery = errors.New(2004, 400, "Invalid query parameters", nil)
	// ErrFragmentNotOpen 未收到起始分片就收到后续分片
	ErrFragmentNotOpen = errors.New(2005, 400, "Fragment continuation without beginning", nil)
	// ErrMessageTooBig 消息超过大小限制
	ErrMessageTooBig = errors.New(2006, 413, "Message too big", nil)
	// ErrServerClosed 服务已关闭
	ErrServerClosed = errors.New(2007, 503, "Server closed", nil)
)

// ErrPeerGone 对端已断开，传输层写失败时用它包装底层错误
var ErrPeerGone = errors.New(2008, 410, "Connection closed by peer", nil)
