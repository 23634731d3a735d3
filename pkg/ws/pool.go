package ws

import (
	"sync"
	"sync/atomic"
)

// WritePool 固定数量的写协程
//
// 任务非阻塞提交，队列满时返回 ErrPoolFull 由调用方处理。
// 关闭后尚未执行的任务被丢弃。
type WritePool struct {
	tasks   chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Int64 // 被拒绝的任务数
}

// NewWritePool 创建并启动写协程池
func NewWritePool(workers, queue int) *WritePool {
	p := &WritePool{
		tasks:  make(chan func(), queue),
		stopCh: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// worker 工作协程
func (p *WritePool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.stopCh:
			return
		}
	}
}

// Submit 提交任务
func (p *WritePool) Submit(task func()) error {
	if p.closed.Load() {
		p.dropped.Add(1)
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		p.dropped.Add(1)
		return ErrPoolFull
	}
}

// Close 停止全部写协程并等待退出
func (p *WritePool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()

	// 不关闭 tasks，避免并发 Submit 导致 panic
}

// Dropped 被拒绝的任务数
func (p *WritePool) Dropped() int64 {
	return p.dropped.Load()
}
