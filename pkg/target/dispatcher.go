package target

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/logger"
)

const tracerName = "scatter.target"

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	Concurrency int           // 同时进行的投递数，超出时丢弃并记录
	SendTimeout time.Duration // 单次投递超时
	Logger      logger.Logger
}

// DispatcherOption 配置选项
type DispatcherOption func(*DispatcherConfig)

// WithConcurrency 设置并发投递上限
func WithConcurrency(n int) DispatcherOption {
	return func(c *DispatcherConfig) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// WithSendTimeout 设置单次投递超时
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		if d > 0 {
			c.SendTimeout = d
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) DispatcherOption {
	return func(c *DispatcherConfig) { c.Logger = l }
}

// Dispatcher 把每条路由消息异步投递给全部目标，失败只记录日志
type Dispatcher struct {
	targets []Target
	sem     *semaphore.Weighted
	cfg     DispatcherConfig
	log     logger.Logger
	tracer  trace.Tracer

	mu      sync.RWMutex // 保护 closed 与 wg.Add
	wg      sync.WaitGroup
	closed  bool
	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher 创建分发器
func NewDispatcher(targets []Target, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherConfig{
		Concurrency: 256,
		SendTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Dispatcher{
		targets: targets,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		cfg:     cfg,
		log:     cfg.Logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// OnMessage 实现 chat.Listener，不阻塞路由
func (d *Dispatcher) OnMessage(p chat.Payload) {
	if len(d.targets) == 0 {
		return
	}

	e, err := NewEvent(p)
	if err != nil {
		d.log.Error("encode target event failed", zap.Error(err))
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, t := range d.targets {
		if !d.sem.TryAcquire(1) {
			d.dropped.Add(1)
			d.log.Warn("target event dropped",
				zap.Error(ErrDispatcherFull),
				zap.String("target", t.Type()),
				zap.String("message_id", e.ID),
			)
			continue
		}
		d.wg.Add(1)
		go func(t Target) {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.send(t, e)
		}(t)
	}
}

func (d *Dispatcher) send(t Target, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "target.send", trace.WithAttributes(
		attribute.String("target.type", t.Type()),
		attribute.String("message.id", e.ID),
		attribute.Int64("chat.sender", int64(e.Payload.Sender)),
	))
	defer span.End()

	if err := t.Send(ctx, e); err != nil {
		d.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log.ErrorContext(ctx, "send to target failed",
			zap.String("target", t.Type()),
			zap.String("message_id", e.ID),
			zap.Error(err),
		)
		return
	}
	d.sent.Add(1)
}

// Stats 已成功、失败与丢弃的投递次数
func (d *Dispatcher) Stats() (sent, failed, dropped int64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}

// Len 目标数量
func (d *Dispatcher) Len() int {
	return len(d.targets)
}

// Close 停止接收新事件，等待进行中的投递后关闭全部目标
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	for _, t := range d.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
