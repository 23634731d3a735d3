package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/ws"
)

// Overview 全局统计
type Overview struct {
	Users       int                 `json:"users"`       // 在线用户数
	Connections int                 `json:"connections"` // 在线连接数
	Stats       []chat.StatSnapshot `json:"stats"`
	Transport   *ws.TransportStats  `json:"transport,omitempty"`
}

// transportReporter 由 ws.Handler 实现
type transportReporter interface {
	TransportStats() (ws.TransportStats, bool)
}

// UserStats 单个用户统计
type UserStats struct {
	chat.StatSnapshot
	Online  int `json:"online"`  // 在线连接数
	Pending int `json:"pending"` // 离线队列长度
}

func (s *Server) stats(c *gin.Context) {
	storage := s.chat.Storage()
	overview := Overview{
		Users:       storage.Size(),
		Connections: storage.Connections(),
		Stats:       s.chat.Stats().Snapshot(),
	}
	if r, ok := s.upgrader.(transportReporter); ok {
		if t, ok := r.TransportStats(); ok {
			overview.Transport = &t
		}
	}
	success(c, overview)
}

func (s *Server) statsOf(c *gin.Context) {
	user, err := chat.ParseUserID(c.Param("id"))
	if err != nil {
		fail(c, ErrInvalidUserID)
		return
	}
	st, ok := s.chat.Stats().Lookup(user)
	if !ok {
		fail(c, ErrUnknownUser)
		return
	}

	ctx := c.Request.Context()
	pending, err := s.chat.Queue().Len(ctx, user)
	if err != nil {
		s.log.WarnContext(ctx, "read undelivered queue length failed", zap.Error(err))
	}
	success(c, UserStats{
		StatSnapshot: st.Snapshot(),
		Online:       s.chat.Storage().SizeOf(user),
		Pending:      pending,
	})
}

func (s *Server) health(c *gin.Context) {
	success(c, gin.H{
		"status":      "ok",
		"connections": s.chat.Storage().Connections(),
	})
}
