package chat

import (
	"sync"
)

// ConnectionStorage 用户到在线连接的注册表
//
// 主表（users/owners）由 mu 保护，等待 pong 的表由 pongMu 保护。
// 两把锁不会同时持有；同时涉及两张表的操作先处理主表、释放后再处理 pong 表。
// 回调（ForEach/Range 的处理函数、OnRemove 钩子、Connection.Close）都在锁外执行，
// 因此回调里可以再调用 Remove 等方法。
type ConnectionStorage struct {
	mu     sync.RWMutex
	users  map[UserID]map[ConnID]Connection
	owners map[ConnID]UserID

	pongMu   sync.Mutex
	pongWait map[ConnID]UserID

	onRemove func(UserID, Connection)
}

// NewConnectionStorage 创建注册表
func NewConnectionStorage() *ConnectionStorage {
	return &ConnectionStorage{
		users:    make(map[UserID]map[ConnID]Connection),
		owners:   make(map[ConnID]UserID),
		pongWait: make(map[ConnID]UserID),
	}
}

// OnRemove 设置移除钩子，每条被移除的连接恰好回调一次
// 必须在注册表投入使用前设置
func (s *ConnectionStorage) OnRemove(hook func(UserID, Connection)) {
	s.onRemove = hook
}

// Add 登记连接，不去重
func (s *ConnectionStorage) Add(user UserID, conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[user]
	if !ok {
		conns = make(map[ConnID]Connection)
		s.users[user] = conns
	}
	conns[conn.ID()] = conn
	s.owners[conn.ID()] = user
}

// Remove 移除用户的全部连接，返回移除数量
func (s *ConnectionStorage) Remove(user UserID) int {
	s.mu.Lock()
	conns := s.users[user]
	delete(s.users, user)
	for id := range conns {
		delete(s.owners, id)
	}
	s.mu.Unlock()

	s.afterRemove(user, conns)
	return len(conns)
}

// RemoveConn 移除用户的指定连接
func (s *ConnectionStorage) RemoveConn(user UserID, id ConnID) bool {
	s.mu.Lock()
	conn, ok := s.detach(user, id)
	s.mu.Unlock()

	if ok {
		s.afterRemove(user, map[ConnID]Connection{id: conn})
	}
	return ok
}

// RemoveConnection 按连接移除，返回其所属用户
func (s *ConnectionStorage) RemoveConnection(conn Connection) (UserID, bool) {
	id := conn.ID()

	s.mu.Lock()
	user, ok := s.owners[id]
	if ok {
		conn, ok = s.detach(user, id)
	}
	s.mu.Unlock()

	if ok {
		s.afterRemove(user, map[ConnID]Connection{id: conn})
	}
	return user, ok
}

// detach 从主表摘除一条连接，调用方持有 mu
func (s *ConnectionStorage) detach(user UserID, id ConnID) (Connection, bool) {
	conns, ok := s.users[user]
	if !ok {
		return nil, false
	}
	conn, ok := conns[id]
	if !ok {
		return nil, false
	}
	delete(conns, id)
	delete(s.owners, id)
	if len(conns) == 0 {
		delete(s.users, user)
	}
	return conn, true
}

// afterRemove 清理 pong 表并触发钩子，调用方不持有任何锁
func (s *ConnectionStorage) afterRemove(user UserID, conns map[ConnID]Connection) {
	if len(conns) == 0 {
		return
	}

	s.pongMu.Lock()
	for id := range conns {
		delete(s.pongWait, id)
	}
	s.pongMu.Unlock()

	if s.onRemove != nil {
		for _, conn := range conns {
			s.onRemove(user, conn)
		}
	}
}

// Get 返回用户在线连接的副本
func (s *ConnectionStorage) Get(user UserID) (map[ConnID]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns, ok := s.users[user]
	if !ok || len(conns) == 0 {
		return nil, ErrConnectionNotFound
	}
	out := make(map[ConnID]Connection, len(conns))
	for id, c := range conns {
		out[id] = c
	}
	return out, nil
}

// Exists 用户是否在线
func (s *ConnectionStorage) Exists(user UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[user]) > 0
}

// Size 在线用户数
func (s *ConnectionStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// SizeOf 用户的在线连接数
func (s *ConnectionStorage) SizeOf(user UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[user])
}

// Connections 在线连接总数
func (s *ConnectionStorage) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owners)
}

// ForEach 对用户的每条连接调用 onFound；用户不在线时调用 onNotFound
// 处理函数在锁外对快照执行
func (s *ConnectionStorage) ForEach(user UserID, onFound func(Connection), onNotFound func()) {
	conns, err := s.Get(user)
	if err != nil {
		if onNotFound != nil {
			onNotFound()
		}
		return
	}
	for _, conn := range conns {
		onFound(conn)
	}
}

// Range 遍历全部连接的快照，fn 返回 false 时停止
func (s *ConnectionStorage) Range(fn func(UserID, Connection) bool) {
	type entry struct {
		user UserID
		conn Connection
	}

	s.mu.RLock()
	snapshot := make([]entry, 0, len(s.owners))
	for user, conns := range s.users {
		for _, conn := range conns {
			snapshot = append(snapshot, entry{user, conn})
		}
	}
	s.mu.RUnlock()

	for _, e := range snapshot {
		if !fn(e.user, e.conn) {
			return
		}
	}
}

// MarkPongWait 记录已发送 ping、等待 pong
// 连接已不在注册表中时忽略，保证 pong 表只引用在线连接
func (s *ConnectionStorage) MarkPongWait(conn Connection) {
	s.mu.RLock()
	user, ok := s.owners[conn.ID()]
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.pongMu.Lock()
	s.pongWait[conn.ID()] = user
	s.pongMu.Unlock()
}

// MarkPongReceived 记录收到 pong
func (s *ConnectionStorage) MarkPongReceived(conn Connection) {
	s.pongMu.Lock()
	delete(s.pongWait, conn.ID())
	s.pongMu.Unlock()
}

// AwaitingPong 连接是否处于等待 pong 状态
func (s *ConnectionStorage) AwaitingPong(conn Connection) bool {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	_, ok := s.pongWait[conn.ID()]
	return ok
}

// DisconnectWithoutPong 关闭并移除所有仍在等待 pong 的连接，返回移除数量
// 连续调用且中间没有新的 ping 时，第二次返回 0
func (s *ConnectionStorage) DisconnectWithoutPong(code int, reason string) int {
	s.pongMu.Lock()
	pending := s.pongWait
	s.pongWait = make(map[ConnID]UserID)
	s.pongMu.Unlock()

	evicted := 0
	for id, user := range pending {
		s.mu.Lock()
		conn, ok := s.detach(user, id)
		s.mu.Unlock()
		if !ok {
			continue
		}

		conn.Close(code, reason)
		s.afterRemove(user, map[ConnID]Connection{id: conn})
		evicted++
	}
	return evicted
}

// Close 关闭并清空全部连接
func (s *ConnectionStorage) Close(code int, reason string) int {
	s.mu.Lock()
	users := s.users
	s.users = make(map[UserID]map[ConnID]Connection)
	s.owners = make(map[ConnID]UserID)
	s.mu.Unlock()

	n := 0
	for user, conns := range users {
		for _, conn := range conns {
			conn.Close(code, reason)
		}
		n += len(conns)
		s.afterRemove(user, conns)
	}
	return n
}
