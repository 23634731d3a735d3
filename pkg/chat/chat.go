package chat

import (
	"net/http"
	"strconv"
	"sync/atomic"
)

// UserID 用户 ID，0 保留给机器人/系统
type UserID uint64

// BotID 机器人/系统用户
const BotID UserID = 0

// String 实现 fmt.Stringer
func (id UserID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseUserID 解析十进制用户 ID
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(v), nil
}

// ConnID 连接 ID，进程内唯一
type ConnID uint64

var connSeq atomic.Uint64

// NextConnID 分配新的连接 ID
func NextConnID() ConnID {
	return ConnID(connSeq.Add(1))
}

// Opcode 传输层帧类型
type Opcode int

const (
	OpText Opcode = iota
	OpBinary
	OpFragmentBegin
	OpFragmentContinue
	OpFragmentEnd
	OpPing
	OpPong
)

func (op Opcode) String() string {
	switch op {
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpFragmentBegin:
		return "fragment_begin"
	case OpFragmentContinue:
		return "fragment_continue"
	case OpFragmentEnd:
		return "fragment_end"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// 关闭状态码
const (
	CloseMessageTooBig      = 1009
	CloseInvalidQueryParams = 4400
	CloseUnauthorized       = 4401
	CloseInactive           = 4408
	CloseInvalidPayload     = 4422
)

// Connection 一条客户端连接
// Send 与 Ping 为异步写，done 在写完成（或失败）后于写协程中调用，可为 nil；
// done 不得在 Send/Ping 内同步调用
type Connection interface {
	ID() ConnID
	RemoteAddr() string
	Send(data []byte, done func(error))
	Ping(done func(error))
	Close(code int, reason string)
}

// Listener 每条路由消息回调一次（不按接收人展开）
type Listener interface {
	OnMessage(p Payload)
}

// ListenerFunc 函数适配器
type ListenerFunc func(p Payload)

// OnMessage 实现 Listener
func (f ListenerFunc) OnMessage(p Payload) {
	f(p)
}

// Authenticator 连接建立时调用一次，返回 false 时连接以 CloseUnauthorized 关闭
type Authenticator interface {
	Validate(r *http.Request) bool
}
