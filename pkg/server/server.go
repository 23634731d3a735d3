package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/logger"
	"github.com/tokmz/scatter/pkg/tracing"
)

// Server HTTP 入口：WebSocket 升级、统计与健康检查
type Server struct {
	config *Config
	engine *gin.Engine
	server *http.Server
	chat   *chat.Server
	log    logger.Logger

	upgrader http.Handler

	limiter *upgradeLimiter
}

// New 创建 HTTP 服务，upgrader 为 WebSocket 升级处理器
func New(chatServer *chat.Server, upgrader http.Handler, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	// gin.SetMode 为全局状态
	gin.SetMode(config.Mode)
	silenceGin()
	engine := gin.New()
	engine.Use(gin.Recovery())
	if config.TrustedProxies != nil {
		if err := engine.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	s := &Server{
		config: config,
		engine: engine,
		chat:   chatServer,
		log:    config.Logger.With(zap.String("module", "http")),

		upgrader: upgrader,
	}
	if config.UpgradeRate > 0 {
		s.limiter = newUpgradeLimiter(config.UpgradeRate, config.UpgradeBurst)
		go s.limiter.run()
	}
	s.routes(upgrader)

	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           engine,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	return s
}

func (s *Server) routes(upgrader http.Handler) {
	s.engine.Use(
		tracing.Middleware(tracing.WithFilter(func(c *gin.Context) bool {
			return c.Request.URL.Path != "/health"
		})),
		logger.Middleware(s.log),
	)

	upgrade := []gin.HandlerFunc{gin.WrapH(upgrader)}
	if s.limiter != nil {
		upgrade = append([]gin.HandlerFunc{s.limiter.middleware(s.log)}, upgrade...)
	}
	s.engine.GET(s.config.Endpoint, upgrade...)

	api := s.engine.Group("")
	if len(s.config.CORSOrigins) > 0 {
		api.Use(cors(s.config.CORSOrigins))
		api.OPTIONS("/stats", func(*gin.Context) {})
		api.OPTIONS("/stats/:id", func(*gin.Context) {})
	}
	api.GET("/stats", s.stats)
	api.GET("/stats/:id", s.statsOf)
	api.GET("/health", s.health)
}

// Handler 返回路由，供测试或外部 http.Server 使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听并阻塞，Shutdown 后返回 nil
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve 在给定监听上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("endpoint", s.config.Endpoint),
		zap.Bool("tls", s.config.TLSEnabled()),
	)

	var err error
	if s.config.TLSEnabled() {
		err = s.server.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
	} else {
		err = s.server.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 停止接收新连接并等待进行中的 HTTP 请求
// 已升级的 WebSocket 连接由 chat.Server 与 ws.Handler 关闭
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.stop()
	}
	s.log.Info("http server stopped")
	return err
}
