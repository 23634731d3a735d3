package ws

import "sync/atomic"

// Metrics 传输层计数回调，需并发安全
type Metrics interface {
	ConnOpened()
	ConnClosed()
	Written()
	Dropped()
	ReadFailed()
	WriteFailed()
}

// TransportStats 传输层计数快照
type TransportStats struct {
	Open        int64 `json:"open"`        // 当前连接数
	Accepted    int64 `json:"accepted"`    // 累计升级成功数
	Written     int64 `json:"written"`     // 写出的消息数
	Dropped     int64 `json:"dropped"`     // outbox 满或写协程池拒绝而丢弃的消息数
	ReadErrors  int64 `json:"readErrors"`  // 读失败次数
	WriteErrors int64 `json:"writeErrors"` // 写失败次数
}

// Counters 进程内原子计数，未设置 Metrics 时默认使用
type Counters struct {
	open      atomic.Int64
	accepted  atomic.Int64
	written   atomic.Int64
	dropped   atomic.Int64
	readErrs  atomic.Int64
	writeErrs atomic.Int64
}

func (c *Counters) ConnOpened() {
	c.open.Add(1)
	c.accepted.Add(1)
}

func (c *Counters) ConnClosed()  { c.open.Add(-1) }
func (c *Counters) Written()     { c.written.Add(1) }
func (c *Counters) Dropped()     { c.dropped.Add(1) }
func (c *Counters) ReadFailed()  { c.readErrs.Add(1) }
func (c *Counters) WriteFailed() { c.writeErrs.Add(1) }

// Snapshot 读取当前计数
func (c *Counters) Snapshot() TransportStats {
	return TransportStats{
		Open:        c.open.Load(),
		Accepted:    c.accepted.Load(),
		Written:     c.written.Load(),
		Dropped:     c.dropped.Load(),
		ReadErrors:  c.readErrs.Load(),
		WriteErrors: c.writeErrs.Load(),
	}
}
