package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/scatter/pkg/auth"
	"github.com/tokmz/scatter/pkg/config"
	"github.com/tokmz/scatter/pkg/logger"
	"github.com/tokmz/scatter/pkg/rdb"
	"github.com/tokmz/scatter/pkg/request"
)

// Deps 目标共享的依赖
type Deps struct {
	Redis  redis.UniversalClient // redis 目标未单独配置连接时使用
	Logger logger.Logger
}

// New 按配置创建单个目标
func New(ctx context.Context, s config.TargetSettings, deps Deps) (Target, error) {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	switch s.Type {
	case TypeRedis:
		if s.Redis == nil {
			return NewRedis(deps.Redis, s.Mode, s.Name, false)
		}
		client, err := rdb.New(ctx, *s.Redis)
		if err != nil {
			return nil, err
		}
		t, err := NewRedis(client, s.Mode, s.Name, true)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return t, nil

	case TypePostback:
		a, err := auth.New(s.Auth)
		if err != nil {
			return nil, err
		}
		client := request.New(
			request.WithTimeout(s.Timeout),
			request.WithRetries(s.Retries),
			request.WithTracing(true),
			request.WithLogger(deps.Logger),
			request.WithBefore(a.Apply),
		)
		return NewPostback(client, s.Method, s.URL)

	case TypeKafka:
		if len(s.Brokers) == 0 {
			return nil, ErrInvalidSettings.WithMessage("kafka target requires brokers")
		}
		producer, err := NewKafkaProducer(s.Brokers)
		if err != nil {
			return nil, err
		}
		t, err := NewKafka(producer, s.Topic)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		return t, nil

	case TypeAMQP:
		if s.AmqpURL == "" {
			return nil, ErrInvalidSettings.WithMessage("amqp target requires amqpUrl")
		}
		conn, ch, err := DialAMQP(s.AmqpURL)
		if err != nil {
			return nil, err
		}
		t, err := NewAMQP(conn, ch, s.Exchange, s.RoutingKey)
		if err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
		return t, nil

	default:
		return nil, ErrUnknownType.WithMessage("unknown target type: " + s.Type)
	}
}

// NewAll 创建全部目标，任一失败时关闭已创建的目标
func NewAll(ctx context.Context, list []config.TargetSettings, deps Deps) ([]Target, error) {
	targets := make([]Target, 0, len(list))
	for i, s := range list {
		t, err := New(ctx, s, deps)
		if err != nil {
			for _, created := range targets {
				err = errors.Join(err, created.Close())
			}
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
