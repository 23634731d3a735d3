package chat

import (
	"context"
	"sync"
)

// UndeliveredQueue 每个接收人一条 FIFO，保存暂时无法投递的消息
type UndeliveredQueue interface {
	Push(ctx context.Context, user UserID, p Payload) error
	// Drain 按入队顺序取出并清空用户的全部消息
	Drain(ctx context.Context, user UserID) ([]Payload, error)
	Len(ctx context.Context, user UserID) (int, error)
}

// MemoryQueue 进程内离线队列
// maxPerUser 为 0 时不限长度；超出上限时丢弃最早的消息
type MemoryQueue struct {
	mu         sync.Mutex
	queues     map[UserID][]Payload
	maxPerUser int
	dropped    uint64
}

// NewMemoryQueue 创建进程内离线队列
func NewMemoryQueue(maxPerUser int) *MemoryQueue {
	return &MemoryQueue{
		queues:     make(map[UserID][]Payload),
		maxPerUser: maxPerUser,
	}
}

// Push 入队
func (q *MemoryQueue) Push(_ context.Context, user UserID, p Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := append(q.queues[user], p)
	if q.maxPerUser > 0 && len(queue) > q.maxPerUser {
		over := len(queue) - q.maxPerUser
		q.dropped += uint64(over)
		queue = append(queue[:0:0], queue[over:]...)
	}
	q.queues[user] = queue
	return nil
}

// Drain 出队全部消息
func (q *MemoryQueue) Drain(_ context.Context, user UserID) ([]Payload, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[user]
	delete(q.queues, user)
	return queue, nil
}

// Len 队列长度
func (q *MemoryQueue) Len(_ context.Context, user UserID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[user]), nil
}

// Dropped 因超出上限被丢弃的消息数
func (q *MemoryQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
