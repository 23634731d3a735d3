package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/logger"
)

// Handler 把 HTTP 请求升级为 WebSocket 并接入路由服务
type Handler struct {
	server   *chat.Server
	pool     *WritePool
	upgrader websocket.Upgrader
	config   *Config
	log      logger.Logger
	metrics  Metrics

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewHandler 创建处理器并启动写协程池
func NewHandler(server *chat.Server, opts ...Option) (*Handler, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, ErrInvalidConfig.WithError(err)
	}

	if config.Metrics == nil {
		config.Metrics = &Counters{}
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	return &Handler{
		server:   server,
		pool:     NewWritePool(config.Workers, config.WorkerQueue),
		upgrader: newUpgrader(config),
		config:   config,
		log:      config.Logger.With(zap.String("module", "ws")),
		metrics:  config.Metrics,
	}, nil
}

// TransportStats 使用内置 Counters 时返回计数快照
func (h *Handler) TransportStats() (TransportStats, bool) {
	c, ok := h.metrics.(*Counters)
	if !ok {
		return TransportStats{}, false
	}
	return c.Snapshot(), true
}

// ServeHTTP 处理 WebSocket 升级
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrShuttingDown.Message, http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader 已写回错误响应
		h.log.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	conn := newConn(ws, h.pool, h.config, h.log)
	h.metrics.ConnOpened()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.metrics.ConnClosed()
		defer ws.Close()
		h.serve(conn, r)
	}()
}

// serve 接入连接并运行读循环，直到连接断开
func (h *Handler) serve(conn *Conn, r *http.Request) {
	ws := conn.ws

	// pong 由路由层记录，ping 回复 pong 后同样交给路由层
	ws.SetPongHandler(func(string) error {
		h.server.HandleFrame(conn, chat.OpPong, nil)
		return nil
	})
	ws.SetPingHandler(func(data string) error {
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(h.config.WriteTimeout))
		h.server.HandleFrame(conn, chat.OpPing, nil)
		if err == nil || errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})

	if _, err := h.server.Accept(conn, r); err != nil {
		h.log.Debug("connection rejected", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
		// 等待对端回应关闭帧
		h.discard(ws)
		return
	}

	code, reason := h.readLoop(conn)
	h.server.Disconnect(conn, code, reason)
}

// readLoop 按 FragmentSize 分片读取消息，返回断开时的状态码与原因
func (h *Handler) readLoop(conn *Conn) (int, string) {
	buf := make([]byte, h.config.FragmentSize)
	for {
		mt, r, err := conn.ws.NextReader()
		if err != nil {
			return closeInfo(err)
		}
		if conn.IsClosed() {
			continue
		}

		op := chat.OpText
		if mt == websocket.BinaryMessage {
			op = chat.OpBinary
		}
		if err := h.readMessage(conn, op, r, buf); err != nil {
			h.metrics.ReadFailed()
			return closeInfo(err)
		}
	}
}

// readMessage 一帧装得下时按单帧交付，否则拆成 Begin/Continue/End
func (h *Handler) readMessage(conn *Conn, op chat.Opcode, r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		h.server.HandleFrame(conn, op, buf[:n])
		return nil
	case err != nil:
		return err
	}

	h.server.HandleFrame(conn, chat.OpFragmentBegin, buf[:n])
	for !conn.IsClosed() {
		n, err = io.ReadFull(r, buf)
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			h.server.HandleFrame(conn, chat.OpFragmentEnd, buf[:n])
			return nil
		case err != nil:
			return err
		}
		h.server.HandleFrame(conn, chat.OpFragmentContinue, buf[:n])
	}
	return nil
}

// discard 丢弃剩余输入直到连接出错（关闭帧回应或读超时）
func (h *Handler) discard(ws *websocket.Conn) {
	for {
		if _, _, err := ws.NextReader(); err != nil {
			return
		}
	}
}

// closeInfo 从读错误中取出关闭状态码
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// Shutdown 拒绝新连接，等待读循环退出后关闭写协程池
// 调用前应先关闭 chat.Server，使在线连接收到关闭帧
func (h *Handler) Shutdown(ctx context.Context) error {
	h.closed.Store(true)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	h.pool.Close()
	if dropped := h.pool.Dropped(); dropped > 0 {
		h.log.Warn("write tasks dropped", zap.Int64("count", dropped))
	}
	return err
}
