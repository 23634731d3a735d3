package chat

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics 单个用户的计数器，首次访问时创建，进程内不销毁
type Statistics struct {
	user UserID

	sent         atomic.Uint64
	received     atomic.Uint64
	undelivered  atomic.Uint64
	bytes        atomic.Uint64
	connects     atomic.Uint64
	disconnects  atomic.Uint64
	lastActivity atomic.Int64 // unix 纳秒
}

// StatSnapshot 计数器快照
type StatSnapshot struct {
	User             UserID    `json:"user"`
	SentMessages     uint64    `json:"sentMessages"`
	ReceivedMessages uint64    `json:"receivedMessages"`
	Undelivered      uint64    `json:"undeliveredMessages"`
	BytesTransferred uint64    `json:"bytesTransferred"`
	Connections      uint64    `json:"connections"`
	Disconnections   uint64    `json:"disconnections"`
	LastActivity     time.Time `json:"lastActivity"`
}

func (s *Statistics) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// AddSent 用户发出一条消息（按接收人计）
func (s *Statistics) AddSent(now time.Time) {
	s.sent.Add(1)
	s.touch(now)
}

// AddReceived 消息成功写入用户的一条连接
func (s *Statistics) AddReceived(now time.Time, n int) {
	s.received.Add(1)
	s.bytes.Add(uint64(n))
	s.touch(now)
}

// AddBytes 累加传输字节数
func (s *Statistics) AddBytes(n int) {
	s.bytes.Add(uint64(n))
}

// AddUndelivered 发给该用户的消息未能送达
func (s *Statistics) AddUndelivered() {
	s.undelivered.Add(1)
}

// AddConnection 新连接
func (s *Statistics) AddConnection(now time.Time) {
	s.connects.Add(1)
	s.touch(now)
}

// AddDisconnection 连接断开
func (s *Statistics) AddDisconnection() {
	s.disconnects.Add(1)
}

// Touch 刷新最近活跃时间
func (s *Statistics) Touch(now time.Time) {
	s.touch(now)
}

// InactiveTime 距最近一次活跃的时长
func (s *Statistics) InactiveTime(now time.Time) time.Duration {
	last := s.lastActivity.Load()
	if last == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, last))
}

// Snapshot 导出当前值
func (s *Statistics) Snapshot() StatSnapshot {
	snap := StatSnapshot{
		User:             s.user,
		SentMessages:     s.sent.Load(),
		ReceivedMessages: s.received.Load(),
		Undelivered:      s.undelivered.Load(),
		BytesTransferred: s.bytes.Load(),
		Connections:      s.connects.Load(),
		Disconnections:   s.disconnects.Load(),
	}
	if last := s.lastActivity.Load(); last != 0 {
		snap.LastActivity = time.Unix(0, last)
	}
	return snap
}

// StatsRegistry 用户计数器表
type StatsRegistry struct {
	mu    sync.Mutex
	stats map[UserID]*Statistics
}

// NewStatsRegistry 创建计数器表
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{stats: make(map[UserID]*Statistics)}
}

// Of 获取用户计数器，不存在时原子地创建
func (r *StatsRegistry) Of(user UserID) *Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[user]
	if !ok {
		s = &Statistics{user: user}
		r.stats[user] = s
	}
	return s
}

// Lookup 获取已存在的计数器
func (r *StatsRegistry) Lookup(user UserID) (*Statistics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[user]
	return s, ok
}

// Snapshot 全部用户的快照，按用户 ID 排序
func (r *StatsRegistry) Snapshot() []StatSnapshot {
	r.mu.Lock()
	all := make([]*Statistics, 0, len(r.stats))
	for _, s := range r.stats {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]StatSnapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}
