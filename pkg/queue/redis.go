// Package queue 离线消息队列的外部存储实现
//
// 进程内实现见 chat.MemoryQueue；这里的实现在进程重启后保留消息，
// 多实例部署时也可共享。
package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/scatter/pkg/chat"
)

// DefaultKeyPrefix 默认键前缀，完整键为 prefix + 用户 ID
const DefaultKeyPrefix = "scatter:undelivered:"

// RedisQueue 每个用户一个 Redis list，RPUSH 入队，LRANGE+DEL 在事务中出队
type RedisQueue struct {
	client     redis.UniversalClient
	keyPrefix  string
	maxPerUser int
	ttl        time.Duration
}

// RedisOption Redis 队列选项
type RedisOption func(*RedisQueue)

// WithKeyPrefix 设置键前缀
func WithKeyPrefix(prefix string) RedisOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.keyPrefix = prefix
		}
	}
}

// WithMaxPerUser 每个用户最多保留的条数，超出时丢弃最早的
func WithMaxPerUser(n int) RedisOption {
	return func(q *RedisQueue) {
		q.maxPerUser = n
	}
}

// WithTTL 键过期时间，每次入队时刷新
func WithTTL(ttl time.Duration) RedisOption {
	return func(q *RedisQueue) {
		q.ttl = ttl
	}
}

// NewRedisQueue 创建 Redis 离线队列
func NewRedisQueue(client redis.UniversalClient, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) key(user chat.UserID) string {
	return q.keyPrefix + strconv.FormatUint(uint64(user), 10)
}

// Push 入队
func (q *RedisQueue) Push(ctx context.Context, user chat.UserID, p chat.Payload) error {
	data, err := json.Marshal(p.Record())
	if err != nil {
		return ErrEncode.WithError(err)
	}

	key := q.key(user)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if q.maxPerUser > 0 {
			pipe.LTrim(ctx, key, int64(-q.maxPerUser), -1)
		}
		if q.ttl > 0 {
			pipe.Expire(ctx, key, q.ttl)
		}
		return nil
	})
	if err != nil {
		return ErrStore.WithError(err)
	}
	return nil
}

// Drain 出队全部消息
func (q *RedisQueue) Drain(ctx context.Context, user chat.UserID) ([]chat.Payload, error) {
	key := q.key(user)

	var items *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, ErrStore.WithError(err)
	}

	return decodeAll(items.Val())
}

// Len 队列长度
func (q *RedisQueue) Len(ctx context.Context, user chat.UserID) (int, error) {
	n, err := q.client.LLen(ctx, q.key(user)).Result()
	if err != nil {
		return 0, ErrStore.WithError(err)
	}
	return int(n), nil
}

// decodeAll 解码持久化记录，单条损坏时跳过并在最后返回错误
func decodeAll(raw []string) ([]chat.Payload, error) {
	out := make([]chat.Payload, 0, len(raw))
	var bad error
	for _, item := range raw {
		var r chat.Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			bad = ErrDecode.WithError(err)
			continue
		}
		out = append(out, chat.FromRecord(r))
	}
	return out, bad
}
