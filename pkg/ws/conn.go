package ws

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/logger"
)

// maxCloseReason 关闭帧 payload 上限 125 字节，减去 2 字节状态码
const maxCloseReason = 123

// closeReason 截断到关闭帧可容纳的长度，不拆分多字节字符
// 关闭原因可能带有客户端传入的原始参数，非法 UTF-8 先替换掉
func closeReason(reason string) string {
	reason = strings.ToValidUTF8(reason, "\uFFFD")
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

type outgoing struct {
	data []byte
	done func(error)
}

// Conn 基于 gorilla/websocket 的 chat.Connection 实现
//
// 待写消息进入连接自己的 outbox，同一时刻最多一个写协程在排空它，
// 因此同一连接上的写入保持 FIFO。写失败后底层连接不可再用，直接关闭。
type Conn struct {
	id     chat.ConnID
	ws     *websocket.Conn
	pool   *WritePool
	config *Config
	log    logger.Logger

	mu       sync.Mutex
	outbox   []outgoing
	draining bool
	closed   bool

	closeOnce sync.Once
	writeMu   sync.Mutex // gorilla 只允许一个并发写者
}

func newConn(ws *websocket.Conn, pool *WritePool, config *Config, log logger.Logger) *Conn {
	id := chat.NextConnID()
	return &Conn{
		id:     id,
		ws:     ws,
		pool:   pool,
		config: config,
		log:    log.With(zap.Uint64("conn_id", uint64(id))),
	}
}

// ID 连接 ID
func (c *Conn) ID() chat.ConnID {
	return c.id
}

// RemoteAddr 获取远程地址
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// IsClosed 检查是否已关闭
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send 异步写一条文本消息
func (c *Conn) Send(data []byte, done func(error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.fail([]outgoing{{data, done}}, ErrConnectionClosed)
		return
	}
	if len(c.outbox) >= c.config.Outbox {
		c.mu.Unlock()
		c.config.Metrics.Dropped()
		c.fail([]outgoing{{data, done}}, ErrOutboxFull)
		return
	}
	c.outbox = append(c.outbox, outgoing{data, done})
	start := !c.draining
	c.draining = true
	c.mu.Unlock()

	if !start {
		return
	}
	if err := c.pool.Submit(c.drain); err != nil {
		c.mu.Lock()
		pending := c.outbox
		c.outbox = nil
		c.draining = false
		c.mu.Unlock()

		c.config.Metrics.Dropped()
		c.fail(pending, err)
	}
}

// drain 在写协程中排空 outbox
func (c *Conn) drain() {
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		item := c.outbox[0]
		c.outbox[0] = outgoing{}
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		err := c.write(item.data)
		if item.done != nil {
			item.done(err)
		}
	}
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return c.broken(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return c.broken(err)
	}
	c.config.Metrics.Written()
	return nil
}

// broken 写失败后 gorilla 连接不可再用：关闭底层连接让读循环退出
func (c *Conn) broken(err error) error {
	c.config.Metrics.WriteFailed()
	c.log.Debug("write failed", zap.Error(err))
	_ = c.ws.Close()
	return chat.ErrPeerGone.WithError(err)
}

// fail 在新协程中回调失败，保证不在 Send/Ping 内同步调用 done
func (c *Conn) fail(items []outgoing, err error) {
	if len(items) == 0 {
		return
	}
	go func() {
		for _, item := range items {
			if item.done != nil {
				item.done(err)
			}
		}
	}()
}

// Ping 异步发送 ping 控制帧
func (c *Conn) Ping(done func(error)) {
	if c.IsClosed() {
		c.fail([]outgoing{{done: done}}, ErrConnectionClosed)
		return
	}

	task := func() {
		err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
		if err != nil {
			err = c.broken(err)
		}
		if done != nil {
			done(err)
		}
	}
	if err := c.pool.Submit(task); err != nil {
		c.fail([]outgoing{{done: done}}, err)
	}
}

// Close 发送关闭帧，等待对端回应或 CloseGrace 超时后由读循环释放连接
// 尚未写出的消息以 ErrConnectionClosed 回调
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.outbox
		c.outbox = nil
		c.mu.Unlock()

		c.fail(pending, chat.ErrPeerGone.WithError(ErrConnectionClosed))

		reason = closeReason(reason)
		deadline := time.Now().Add(c.config.CloseGrace)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.log.Debug("write close frame failed", zap.Error(err))
			_ = c.ws.Close()
			return
		}
		_ = c.ws.SetReadDeadline(deadline)
	})
}
