package chat

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/errors"
	"github.com/tokmz/scatter/pkg/logger"
)

const tracerName = "scatter.chat"

// Server 连接管理与消息路由
type Server struct {
	config    *Config
	storage   *ConnectionStorage
	queue     UndeliveredQueue
	stats     *StatsRegistry
	fragments *fragmentBuffer
	watchdog  *Watchdog

	listenersMu sync.RWMutex
	listeners   []Listener

	// sendMu 串行化按接收人的投递尝试，保证同一接收人的消息按 Send 调用顺序入写队列
	sendMu sync.Mutex

	log    logger.Logger
	now    func() time.Time
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建路由服务
func NewServer(opts ...Option) (*Server, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Queue == nil {
		config.Queue = NewMemoryQueue(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		storage:   NewConnectionStorage(),
		queue:     config.Queue,
		stats:     NewStatsRegistry(),
		fragments: newFragmentBuffer(),
		listeners: append([]Listener(nil), config.Listeners...),
		log:       config.Logger.With(zap.String("module", "chat")),
		now:       config.Clock,
		tracer:    otel.Tracer(tracerName),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.storage.OnRemove(s.onRemoved)
	s.watchdog = newWatchdog(s, config.Watchdog)
	return s, nil
}

// Start 启动后台任务（心跳检测）
func (s *Server) Start() {
	if !s.config.Watchdog.Enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchdog.Run(s.ctx)
	}()
}

// Shutdown 停止后台任务并关闭全部连接
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	n := s.storage.Close(websocketGoingAway, "Server shutdown")
	s.log.Info("chat server stopped", zap.Int("closed_connections", n))
	return err
}

// websocketGoingAway RFC 6455 1001
const websocketGoingAway = 1001

// AddListener 注册监听器
func (s *Server) AddListener(l Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// Storage 连接注册表
func (s *Server) Storage() *ConnectionStorage {
	return s.storage
}

// Stats 用户计数器
func (s *Server) Stats() *StatsRegistry {
	return s.stats
}

// Queue 离线队列
func (s *Server) Queue() UndeliveredQueue {
	return s.queue
}

// Config 当前配置
func (s *Server) Config() Config {
	return *s.config
}

// Accept 处理新连接：鉴权、解析 ?id=、登记并补发离线消息
// 失败时连接已被关闭，返回的错误仅用于记录
func (s *Server) Accept(conn Connection, r *http.Request) (UserID, error) {
	if s.ctx.Err() != nil {
		conn.Close(websocketGoingAway, "Server shutdown")
		return 0, ErrServerClosed
	}

	if s.config.Auth != nil && !s.config.Auth.Validate(r) {
		conn.Close(CloseUnauthorized, "Unauthorized")
		return 0, ErrUnauthorized
	}

	raw := r.URL.Query().Get("id")
	if raw == "" {
		reason := "Id required in query parameter: ?id={id}"
		conn.Close(CloseInvalidQueryParams, reason)
		return 0, ErrInvalidQuery.WithMessage(reason)
	}
	id, err := ParseUserID(raw)
	if err != nil {
		reason := "Passed invalid id: id=" + raw
		conn.Close(CloseInvalidQueryParams, reason)
		return 0, ErrInvalidQuery.WithMessage(reason).WithError(err)
	}

	s.storage.Add(id, conn)
	s.stats.Of(id).AddConnection(s.now())

	s.log.Info("connected",
		zap.Uint64("user_id", uint64(id)),
		zap.Uint64("conn_id", uint64(conn.ID())),
		zap.String("remote", conn.RemoteAddr()),
		zap.Int("user_connections", s.storage.SizeOf(id)),
	)

	ctx := logger.WithConnID(logger.WithUserID(s.ctx, uint64(id)), uint64(conn.ID()))
	if n := s.RedeliverTo(ctx, id); n > 0 {
		s.log.InfoContext(ctx, "redelivered undelivered messages", zap.Int("count", n))
	}
	return id, nil
}

// Disconnect 连接已断开，从注册表移除
func (s *Server) Disconnect(conn Connection, code int, reason string) {
	user, ok := s.storage.RemoveConnection(conn)
	if !ok {
		return
	}
	s.log.Info("disconnected",
		zap.Uint64("user_id", uint64(user)),
		zap.Uint64("conn_id", uint64(conn.ID())),
		zap.Int("code", code),
		zap.String("reason", reason),
	)
}

// onRemoved 每条连接移除时调用一次
func (s *Server) onRemoved(user UserID, conn Connection) {
	s.stats.Of(user).AddDisconnection()
	s.fragments.drop(conn.ID())
}

// closeConn 关闭并移除连接
func (s *Server) closeConn(conn Connection, code int, reason string) {
	conn.Close(code, reason)
	s.storage.RemoveConnection(conn)
}

// HandleFrame 处理一帧入站数据
func (s *Server) HandleFrame(conn Connection, op Opcode, data []byte) {
	switch op {
	case OpPong:
		s.storage.MarkPongReceived(conn)
	case OpPing:
		// 传输层已自动回复 pong
	case OpText, OpBinary:
		s.handleMessage(conn, data)
	case OpFragmentBegin:
		n := s.fragments.begin(conn.ID(), data)
		s.checkFragmentSize(conn, int64(n))
	case OpFragmentContinue:
		n, err := s.fragments.append(conn.ID(), data)
		if err != nil {
			s.rejectFragment(conn, err)
			return
		}
		s.checkFragmentSize(conn, int64(n))
	case OpFragmentEnd:
		msg, err := s.fragments.end(conn.ID(), data)
		if err != nil {
			s.rejectFragment(conn, err)
			return
		}
		s.handleMessage(conn, msg)
	default:
		s.log.Warn("unknown opcode", zap.Stringer("opcode", op), zap.Uint64("conn_id", uint64(conn.ID())))
	}
}

func (s *Server) rejectFragment(conn Connection, err error) {
	s.log.Warn("protocol violation", zap.Uint64("conn_id", uint64(conn.ID())), zap.Error(err))
	s.closeConn(conn, CloseInvalidPayload, "Invalid payload. "+err.Error())
}

// checkFragmentSize 累积长度超限时提前终止重组
func (s *Server) checkFragmentSize(conn Connection, size int64) {
	if size <= s.config.MaxMessageSize {
		return
	}
	s.fragments.drop(conn.ID())
	s.closeTooBig(conn, size)
}

func (s *Server) closeTooBig(conn Connection, size int64) {
	reason := "Message too big. Max size: " + HumanBytes(s.config.MaxMessageSize) + ", got: " + HumanBytes(size)
	s.log.Warn("message too big",
		zap.Uint64("conn_id", uint64(conn.ID())),
		zap.Error(ErrMessageTooBig),
		zap.Int64("size", size),
		zap.Int64("max", s.config.MaxMessageSize),
	)
	s.closeConn(conn, CloseMessageTooBig, reason)
}

func (s *Server) handleMessage(conn Connection, raw []byte) {
	if int64(len(raw)) > s.config.MaxMessageSize {
		s.closeTooBig(conn, int64(len(raw)))
		return
	}

	p := ParsePayload(raw)
	if !p.Valid() {
		err := ErrInvalidPayload.WithMessage("Invalid payload. " + p.Err())
		s.log.Warn("invalid payload", zap.Uint64("conn_id", uint64(conn.ID())), zap.Error(err))
		s.closeConn(conn, CloseInvalidPayload, err.Message)
		return
	}
	// 只发给机器人的消息不经过 SendTo，这里单独刷新活跃时间
	s.stats.Of(p.Sender).Touch(s.now())

	ctx := logger.WithConnID(logger.WithUserID(s.ctx, uint64(p.Sender)), uint64(conn.ID()))
	if s.config.EnableSendBack {
		s.SendTo(ctx, p.Sender, p)
	}
	s.Send(ctx, p)
}

// Send 路由一条消息：通知监听器一次，再逐个投递给非机器人接收人
// 只发给机器人的消息不查询注册表
func (s *Server) Send(ctx context.Context, p Payload) {
	if !p.Valid() {
		s.log.WarnContext(ctx, "refusing to route invalid payload", zap.String("cause", p.Err()))
		return
	}

	ctx, span := s.tracer.Start(ctx, "chat.route", trace.WithAttributes(
		attribute.Int64("chat.sender", int64(p.Sender)),
		attribute.Int("chat.recipients", len(p.Recipients)),
		attribute.String("chat.type", p.Type),
	))
	defer span.End()

	s.notify(p)
	if p.IsForBot() {
		span.SetAttributes(attribute.Bool("chat.bot", true))
		return
	}

	for _, r := range p.Recipients {
		if r == BotID {
			continue
		}
		s.SendTo(ctx, r, p)
	}
}

func (s *Server) notify(p Payload) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnMessage(p)
	}
}

// SendTo 把消息投递给 recipient 的每条在线连接
// 不在线时转入离线队列；每条连接的写结果独立处理
func (s *Server) SendTo(ctx context.Context, recipient UserID, p Payload) {
	out := p.WithRecipient(recipient)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !out.IsSendStatus() {
		s.stats.Of(out.Sender).AddSent(s.now())
	}

	conns, err := s.storage.Get(recipient)
	if err != nil {
		s.undeliverable(ctx, recipient, out)
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		s.log.ErrorContext(ctx, "marshal payload failed", zap.Error(err))
		return
	}

	bg := context.WithoutCancel(ctx)
	for _, conn := range conns {
		conn.Send(data, func(err error) {
			s.onWritten(bg, recipient, conn, out, len(data), err)
		})
	}
}

// onWritten 写完成回调，在写协程中执行
func (s *Server) onWritten(ctx context.Context, recipient UserID, conn Connection, p Payload, n int, err error) {
	if err != nil {
		gone := IsPeerGone(err)
		if gone {
			s.storage.RemoveConnection(conn)
		}
		s.log.WarnContext(ctx, "write failed",
			zap.Uint64("recipient", uint64(recipient)),
			zap.Uint64("conn_id", uint64(conn.ID())),
			zap.Bool("peer_gone", gone),
			zap.Error(err),
		)
		s.undeliverable(ctx, recipient, p)
		return
	}

	if p.IsSendStatus() {
		return
	}

	s.stats.Of(recipient).AddReceived(s.now(), n)
	s.stats.Of(p.Sender).AddBytes(n)

	if s.config.EnableDeliveryStatus && p.Sender != recipient {
		s.Send(ctx, NewSendStatus(p, recipient))
	}
}

// undeliverable 记录未送达并按配置入队
func (s *Server) undeliverable(ctx context.Context, recipient UserID, p Payload) {
	if !p.IsSendStatus() {
		s.stats.Of(recipient).AddUndelivered()
	}
	if !s.config.EnableUndeliveredQueue {
		return
	}
	if err := s.queue.Push(ctx, recipient, p); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue undelivered")
		s.log.ErrorContext(ctx, "enqueue undelivered message failed",
			zap.Uint64("recipient", uint64(recipient)),
			zap.Error(err),
		)
	}
}

// RedeliverTo 按入队顺序取出用户的离线消息并重新路由，返回条数
func (s *Server) RedeliverTo(ctx context.Context, user UserID) int {
	if !s.config.EnableUndeliveredQueue {
		return 0
	}

	// 部分记录损坏时 Drain 同时返回可用消息与错误
	items, err := s.queue.Drain(ctx, user)
	if err != nil {
		s.log.ErrorContext(ctx, "drain undelivered queue failed", zap.Uint64("user_id", uint64(user)), zap.Error(err))
	}
	for _, p := range items {
		s.Send(ctx, p)
	}
	return len(items)
}

// IsPeerGone 写错误是否表示对端已断开
func IsPeerGone(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPeerGone) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
