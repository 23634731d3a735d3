package chat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watchdog 周期性探测连接
//
// 每个周期分两步：先对所有连接发 ping（闲置超过 Lifetime 的直接关闭），
// 等待 PongGrace 后把仍未回复 pong 的连接全部断开。
type Watchdog struct {
	server *Server
	config WatchdogConfig
}

func newWatchdog(s *Server, config WatchdogConfig) *Watchdog {
	return &Watchdog{server: s, config: config}
}

// Run 阻塞运行直到 ctx 取消
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !w.Cycle(ctx) {
			return
		}
	}
}

// Cycle 执行一次探测与清理，ctx 在等待期间取消时返回 false
func (w *Watchdog) Cycle(ctx context.Context) bool {
	expired, probed := w.probe()

	if w.config.PongGrace > 0 {
		timer := time.NewTimer(w.config.PongGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	evicted := w.server.storage.DisconnectWithoutPong(CloseInactive, "Connection timed out: no pong received")
	if expired > 0 || evicted > 0 {
		w.server.log.Info("watchdog cycle",
			zap.Int("probed", probed),
			zap.Int("expired", expired),
			zap.Int("evicted", evicted),
			zap.Int("online_users", w.server.storage.Size()),
		)
	}
	return true
}

// probe 关闭闲置连接，其余连接发送 ping
func (w *Watchdog) probe() (expired, probed int) {
	s := w.server
	now := s.now()

	s.storage.Range(func(user UserID, conn Connection) bool {
		idle := s.stats.Of(user).InactiveTime(now)
		if idle >= w.config.Lifetime {
			s.log.Debug("closing inactive connection",
				zap.Uint64("user_id", uint64(user)),
				zap.Uint64("conn_id", uint64(conn.ID())),
				zap.Duration("idle", idle),
			)
			s.closeConn(conn, CloseInactive, "Inactive connection")
			expired++
			return true
		}

		// 先标记再发送，pong 早于写回调到达时不会被误判为超时
		probed++
		s.storage.MarkPongWait(conn)
		conn.Ping(func(err error) {
			if err == nil {
				return
			}
			s.log.Debug("ping failed",
				zap.Uint64("conn_id", uint64(conn.ID())),
				zap.Error(err),
			)
			s.storage.RemoveConnection(conn)
		})
		return true
	})
	return expired, probed
}
