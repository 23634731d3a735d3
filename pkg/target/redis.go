package target

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis 目标模式
const (
	RedisModeQueue   = "queue"   // RPUSH 到列表
	RedisModeChannel = "channel" // PUBLISH 到频道

	DefaultRedisQueue   = "scatter_events_queue"
	DefaultRedisChannel = "scatter_events_channel"
)

// Redis 把事件写入 Redis 列表或频道
type Redis struct {
	client redis.UniversalClient
	mode   string
	name   string
	owned  bool // 客户端由本目标创建，Close 时一并关闭
}

// NewRedis 创建 Redis 目标，name 为空时按模式取默认名
func NewRedis(client redis.UniversalClient, mode, name string, owned bool) (*Redis, error) {
	switch mode {
	case "", RedisModeQueue:
		mode = RedisModeQueue
		if name == "" {
			name = DefaultRedisQueue
		}
	case RedisModeChannel:
		if name == "" {
			name = DefaultRedisChannel
		}
	default:
		return nil, ErrInvalidSettings.WithMessage("unknown redis target mode: " + mode)
	}
	if client == nil {
		return nil, ErrInvalidSettings.WithMessage("redis target requires a redis client")
	}
	return &Redis{client: client, mode: mode, name: name, owned: owned}, nil
}

// Type 目标类型
func (t *Redis) Type() string { return TypeRedis }

// Mode 当前模式
func (t *Redis) Mode() string { return t.mode }

// Name 列表或频道名
func (t *Redis) Name() string { return t.name }

// Send 写入一条事件
func (t *Redis) Send(ctx context.Context, e Event) error {
	var err error
	if t.mode == RedisModeChannel {
		err = t.client.Publish(ctx, t.name, e.Body).Err()
	} else {
		err = t.client.RPush(ctx, t.name, e.Body).Err()
	}
	if err != nil {
		return ErrSend.WithError(err)
	}
	return nil
}

// Close 关闭自建的客户端
func (t *Redis) Close() error {
	if t.owned {
		return t.client.Close()
	}
	return nil
}
