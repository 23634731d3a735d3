// Package rdb 根据配置创建 Redis 客户端，供离线队列与 redis 投递目标共用
package rdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/scatter/pkg/config"
)

// Redis 模式
const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
	ModeSentinel   = "sentinel"
)

// pingTimeout 创建客户端时连通性检查的超时
const pingTimeout = 5 * time.Second

// New 创建客户端并检查连通性
func New(ctx context.Context, s config.RedisSettings) (redis.UniversalClient, error) {
	client, err := NewClient(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnection.WithError(err)
	}
	return client, nil
}

// NewClient 只创建客户端，不发起连接
func NewClient(s config.RedisSettings) (redis.UniversalClient, error) {
	switch s.Mode {
	case ModeStandalone, "":
		addr := "127.0.0.1:6379"
		if len(s.Addrs) > 0 {
			addr = s.Addrs[0]
		}
		return redis.NewClient(&redis.Options{
			Addr:         addr,
			Username:     s.Username,
			Password:     s.Password,
			DB:           s.DB,
			PoolSize:     s.PoolSize,
			DialTimeout:  s.DialTimeout,
			ReadTimeout:  s.ReadTimeout,
			WriteTimeout: s.WriteTimeout,
		}), nil

	case ModeCluster:
		if len(s.Addrs) == 0 {
			return nil, ErrInvalidConfig.WithMessage("cluster mode requires addrs")
		}
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        s.Addrs,
			Username:     s.Username,
			Password:     s.Password,
			PoolSize:     s.PoolSize,
			DialTimeout:  s.DialTimeout,
			ReadTimeout:  s.ReadTimeout,
			WriteTimeout: s.WriteTimeout,
		}), nil

	case ModeSentinel:
		if len(s.Addrs) == 0 {
			return nil, ErrInvalidConfig.WithMessage("sentinel mode requires addrs")
		}
		if s.MasterName == "" {
			return nil, ErrInvalidConfig.WithMessage("sentinel mode requires master name")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    s.MasterName,
			SentinelAddrs: s.Addrs,
			Username:      s.Username,
			Password:      s.Password,
			DB:            s.DB,
			PoolSize:      s.PoolSize,
			DialTimeout:   s.DialTimeout,
			ReadTimeout:   s.ReadTimeout,
			WriteTimeout:  s.WriteTimeout,
		}), nil

	default:
		return nil, ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported redis mode: %s", s.Mode))
	}
}
