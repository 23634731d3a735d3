package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tokmz/scatter/pkg/auth"
	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/config"
	"github.com/tokmz/scatter/pkg/logger"
	"github.com/tokmz/scatter/pkg/orm"
	"github.com/tokmz/scatter/pkg/queue"
	"github.com/tokmz/scatter/pkg/rdb"
	"github.com/tokmz/scatter/pkg/server"
	"github.com/tokmz/scatter/pkg/target"
	"github.com/tokmz/scatter/pkg/tracing"
	"github.com/tokmz/scatter/pkg/ws"
)

// shutdownTimeout 优雅关闭的总时长
const shutdownTimeout = 15 * time.Second

// app 进程内全部组件
type app struct {
	log        logger.Logger
	redis      redis.UniversalClient
	db         *gorm.DB
	dispatcher *target.Dispatcher
	chat       *chat.Server
	ws         *ws.Handler
	http       *server.Server
	stopPurge  context.CancelFunc
}

func run(ctx context.Context, configPath string, banner bool) error {
	var current atomic.Pointer[logger.Logger]
	settings, cfg, err := config.LoadSettings(configPath, func(s *config.Settings) {
		l := current.Load()
		if l == nil {
			return
		}
		level, ok := logger.ParseLevel(s.Log.Level)
		if !ok {
			(*l).Warn("invalid log level on reload", zap.String("level", s.Log.Level))
			return
		}
		(*l).SetLevel(level)
		(*l).Info("log level reloaded", zap.String("level", level.String()))
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer cfg.Close()

	log, err := logger.New(logger.FromSettings(settings.Log))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	current.Store(&log)
	defer func() { _ = log.Sync() }()

	tc := tracing.FromSettings(settings.Tracing)
	tc.ServiceVersion = server.Version
	if _, err := tracing.NewTracerProvider(ctx, tc); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(sctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, settings, log)
	if err != nil {
		return err
	}

	if banner {
		a.http.PrintBanner(os.Stdout)
	}
	log.Info("scatter started",
		zap.String("version", server.Version),
		zap.String("address", settings.Server.Address),
		zap.String("endpoint", settings.Server.Endpoint),
		zap.String("queue", settings.Chat.Undelivered.Driver),
		zap.Int("targets", len(settings.Targets)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.http.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.shutdown(sctx)
	})
	return g.Wait()
}

// newApp 按配置创建组件，失败时释放已创建的部分
func newApp(ctx context.Context, s *config.Settings, log logger.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	if needsRedis(s) {
		if a.redis, err = rdb.New(ctx, s.Redis); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if s.Chat.Undelivered.Driver == queue.DriverDatabase {
		dbConfig := orm.FromSettings(s.Database)
		dbConfig.Logger = log.With(zap.String("module", "orm"))
		dbConfig.Tracing = s.Tracing.Enabled
		if a.db, err = orm.New(dbConfig); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}

	q, err := queue.New(s.Chat.Undelivered, a.redis, a.db, s.Database.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("undelivered queue: %w", err)
	}
	if dq, ok := q.(*queue.DatabaseQueue); ok && s.Chat.Undelivered.TTL > 0 {
		var purgeCtx context.Context
		purgeCtx, a.stopPurge = context.WithCancel(context.Background())
		go dq.RunPurge(purgeCtx, s.Chat.Undelivered.TTL, log.With(zap.String("module", "queue")))
	}

	authenticator, err := auth.New(s.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	targets, err := target.NewAll(ctx, s.Targets, target.Deps{Redis: a.redis, Logger: log})
	if err != nil {
		return nil, err
	}
	a.dispatcher = target.NewDispatcher(targets, target.WithLogger(log.With(zap.String("module", "target"))))

	opts := []chat.Option{
		chat.WithMaxMessageSize(s.Chat.MaxMessageSize),
		chat.WithSendBack(s.Chat.EnableSendBack),
		chat.WithUndeliveredQueue(s.Chat.EnableUndeliveredQueue, q),
		chat.WithDeliveryStatus(s.Chat.EnableDeliveryStatus),
		chat.WithWatchdog(chat.WatchdogConfig{
			Enabled:   s.Server.Watchdog.Enabled,
			Interval:  s.Server.Watchdog.Interval,
			Lifetime:  s.Server.Watchdog.Lifetime,
			PongGrace: s.Server.Watchdog.PongGrace,
		}),
		chat.WithAuthenticator(authenticator),
		chat.WithLogger(log),
	}
	if a.dispatcher.Len() > 0 {
		opts = append(opts, chat.WithListener(a.dispatcher))
	}
	if a.chat, err = chat.NewServer(opts...); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	wsOpts := []ws.Option{
		ws.WithWorkers(s.Server.Workers, s.Server.WorkerQueue),
		ws.WithOutbox(s.Server.Outbox),
		ws.WithWriteTimeout(s.Server.WriteTimeout),
		ws.WithFragmentSize(s.Server.FragmentSize),
		ws.WithLogger(log),
	}
	if len(s.Server.AllowedOrigins) > 0 {
		wsOpts = append(wsOpts, ws.WithCheckOriginWhitelist(s.Server.AllowedOrigins))
	}
	if a.ws, err = ws.NewHandler(a.chat, wsOpts...); err != nil {
		return nil, fmt.Errorf("websocket: %w", err)
	}

	a.chat.Start()
	a.http = server.New(a.chat, a.ws, server.FromSettings(s.Server), server.WithLogger(log))
	return a, nil
}

// needsRedis 离线队列或未单独配置连接的 redis 目标需要共享客户端
func needsRedis(s *config.Settings) bool {
	if s.Chat.Undelivered.Driver == queue.DriverRedis {
		return true
	}
	return slices.ContainsFunc(s.Targets, func(t config.TargetSettings) bool {
		return t.Type == target.TypeRedis && t.Redis == nil
	})
}

// shutdown 依次关闭 HTTP、在线连接、写协程池、外部目标与存储
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := a.chat.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat: %w", err))
	}
	if err := a.ws.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket: %w", err))
	}
	a.release(ctx)

	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown incomplete", zap.Error(err))
		return err
	}
	a.log.Info("scatter stopped")
	return nil
}

// release 停止后台清理，关闭分发器与存储连接
func (a *app) release(ctx context.Context) {
	if a.stopPurge != nil {
		a.stopPurge()
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Warn("close targets failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := orm.Close(a.db); err != nil {
			a.log.Warn("close database failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("close redis failed", zap.Error(err))
		}
	}
}
